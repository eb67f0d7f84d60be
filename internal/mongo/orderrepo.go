package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/comandaclub/expedite/internal/kds"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// OrderRepo reads the kitchen core's view of orders and writes the
// roll-up status back. It borrows the database connection owned by
// TicketRepo.
type OrderRepo struct {
	dbFn   func() *mongo.Database
	logger apt.Logger
}

func NewOrderRepo(dbFn func() *mongo.Database, logger apt.Logger) *OrderRepo {
	return &OrderRepo{
		dbFn:   dbFn,
		logger: logger,
	}
}

func (r *OrderRepo) collection() *mongo.Collection {
	return r.dbFn().Collection("orders")
}

func (r *OrderRepo) FindByID(ctx context.Context, id kds.OrderID) (*kds.Order, error) {
	var order kds.Order
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &kds.NotFoundError{Resource: "order", ID: id.String()}
		}
		return nil, fmt.Errorf("cannot find order: %w", err)
	}
	return &order, nil
}

func (r *OrderRepo) SetStatus(ctx context.Context, id kds.OrderID, status string) error {
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}}

	result, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update order status: %w", err)
	}
	if result.MatchedCount == 0 {
		return &kds.NotFoundError{Resource: "order", ID: id.String()}
	}
	return nil
}
