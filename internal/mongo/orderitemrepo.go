package mongo

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/comandaclub/expedite/internal/kds"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderItemRepo accesses the order subsystem's line items: listing
// them for ticket creation and writing back the fields the kitchen
// core owns (routing pair, sent flag, progress milestones). It borrows
// the database connection owned by TicketRepo.
type OrderItemRepo struct {
	dbFn   func() *mongo.Database
	logger apt.Logger
}

func NewOrderItemRepo(dbFn func() *mongo.Database, logger apt.Logger) *OrderItemRepo {
	return &OrderItemRepo{
		dbFn:   dbFn,
		logger: logger,
	}
}

func (r *OrderItemRepo) collection() *mongo.Collection {
	return r.dbFn().Collection("order_items")
}

func (r *OrderItemRepo) FindByID(ctx context.Context, id kds.OrderItemID) (*kds.OrderItem, error) {
	var item kds.OrderItem
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &kds.NotFoundError{Resource: "order item", ID: id.String()}
		}
		return nil, fmt.Errorf("cannot find order item: %w", err)
	}
	return &item, nil
}

func (r *OrderItemRepo) ListByOrderID(ctx context.Context, id kds.OrderID) ([]kds.OrderItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection().Find(ctx, bson.M{"order_id": id}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find order items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []kds.OrderItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("cannot decode order items: %w", err)
	}
	return items, nil
}

func (r *OrderItemRepo) Save(ctx context.Context, item *kds.OrderItem) error {
	filter := bson.M{"_id": item.ID}
	update := bson.M{"$set": item}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection().UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("cannot save order item: %w", err)
	}
	return nil
}
