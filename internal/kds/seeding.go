package kds

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/comandaclub/expedite/pkg/enums/ticketstate"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Seeds returns all seeds for the kitchen core
func Seeds(db *mongo.Database) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "demo_kitchen_orders_v1",
			Description: "Create a demo order with lines routed to several stations",
			Run: func(ctx context.Context) error {
				return seedDemoOrder(ctx, db)
			},
		},
		{
			ID:          "demo_kitchen_tickets_v1",
			Description: "Create demo production tickets in assorted workflow states",
			Run: func(ctx context.Context) error {
				return seedDemoTickets(ctx, db)
			},
		},
	}
}

// Fixed IDs so re-running the seed upserts instead of duplicating.
var (
	demoOrderID = uuid.MustParse("3f1a2b4c-6d5e-4f70-8192-a3b4c5d6e7f8")
	demoTableID = uuid.MustParse("9a0b1c2d-3e4f-4a5b-8c6d-7e8f90a1b2c3")
	demoFloorID = uuid.MustParse("1b2c3d4e-5f60-4a7b-8c9d-0e1f2a3b4c5d")
)

func seedDemoOrder(ctx context.Context, db *mongo.Database) error {
	now := time.Now()

	order := bson.M{
		"_id":        demoOrderID,
		"status":     ticketstate.OrderStates.Draft.Code(),
		"table_id":   demoTableID,
		"floor_id":   demoFloorID,
		"order_type": "dine-in",
		"created_at": now,
		"updated_at": now,
		"created_by": "demo-seed",
	}
	if _, err := db.Collection("orders").UpdateOne(ctx,
		bson.M{"_id": demoOrderID},
		bson.M{"$setOnInsert": order},
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("cannot create demo order: %w", err)
	}

	lines := []struct {
		code     string
		name     string
		category string
		station  string
		qty      int
	}{
		{"BURGER-CLS", "Classic burger", "mains", "Grill", 2},
		{"FRIES-LRG", "Large fries", "sides", "Fry", 1},
		{"MOJITO", "Mojito", "drinks", "Bar", 2},
		{"CHEESECAKE", "Cheesecake", "desserts", "Pastry", 1},
	}

	for i, line := range lines {
		id := uuid.NewSHA1(demoOrderID, []byte(line.code))
		doc := bson.M{
			"_id":          id,
			"order_id":     demoOrderID,
			"product_code": line.code,
			"name":         line.name,
			"category":     line.category,
			"quantity":     line.qty,
			"station":      line.station,
			"sent":         false,
			"created_at":   now.Add(time.Duration(i) * time.Second),
			"updated_at":   now,
			"created_by":   "demo-seed",
		}
		if _, err := db.Collection("order_items").UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("cannot create demo order line %s: %w", line.name, err)
		}
	}

	return nil
}

func seedDemoTickets(ctx context.Context, db *mongo.Database) error {
	now := time.Now()

	tickets := []struct {
		station string
		state   string
		age     time.Duration
		dish    string
	}{
		{"Grill", ticketstate.States.Queued.Code(), 2 * time.Minute, "Ribeye steak"},
		{"Grill", ticketstate.States.InProgress.Code(), 9 * time.Minute, "Lamb skewers"},
		{"Bar", ticketstate.States.Ready.Code(), 4 * time.Minute, "Negroni"},
	}

	for _, demo := range tickets {
		ticketID := uuid.NewSHA1(demoOrderID, []byte(demo.station+demo.dish))
		itemID := uuid.NewSHA1(ticketID, []byte(demo.dish))
		createdAt := now.Add(-demo.age)

		item := bson.M{
			"id":            itemID,
			"order_line_id": uuid.NewSHA1(itemID, []byte("line")),
			"product_code":  "DEMO",
			"name":          demo.dish,
			"quantity":      1,
			"state":         demo.state,
			"milestones":    bson.M{"queued_at": createdAt},
		}

		doc := bson.M{
			"_id":           ticketID,
			"order_id":      uuid.NewSHA1(ticketID, []byte("order")),
			"station_id":    demo.station,
			"state":         demo.state,
			"items":         bson.A{item},
			"created_at":    createdAt,
			"updated_at":    now,
			"created_by":    "demo-seed",
			"model_version": 1,
		}
		if demo.state == ticketstate.States.InProgress.Code() {
			doc["started_at"] = createdAt.Add(3 * time.Minute)
		}
		if demo.state == ticketstate.States.Ready.Code() {
			doc["started_at"] = createdAt.Add(time.Minute)
			doc["ready_at"] = createdAt.Add(3 * time.Minute)
		}

		if _, err := db.Collection("tickets").UpdateOne(ctx,
			bson.M{"_id": ticketID},
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("cannot create demo ticket for %s: %w", demo.dish, err)
		}
	}

	return nil
}

// ApplyDemoSeeds applies demo seeds if enabled via config
func ApplyDemoSeeds(ctx context.Context, config *apt.Config, dbFn func() *mongo.Database, logger apt.Logger) error {
	enabled, _ := config.GetString("seed.demo.enabled")
	if enabled != "true" {
		return nil
	}

	logger.Info("Demo seeding enabled, applying demo kitchen data...")
	db := dbFn()
	if db == nil {
		return fmt.Errorf("database not available for seeding")
	}

	tracker := seed.NewMongoTracker(db)
	if err := seed.Apply(ctx, tracker, Seeds(db), "expedite"); err != nil {
		return fmt.Errorf("demo seed failed: %w", err)
	}

	logger.Info("Demo kitchen data seeded successfully")
	return nil
}
