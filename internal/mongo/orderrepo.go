package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comandaclub/comanda/internal/order"
	"github.com/comandaclub/comanda/internal/tenant"
)

const (
	ordersCollection   = "kiosk_orders"
	countersCollection = "kiosk_counters"
)

type OrderRepo struct {
	base *BaseRepo
}

func NewOrderRepo(base *BaseRepo) *OrderRepo {
	return &OrderRepo{base: base}
}

func (r *OrderRepo) col(tn tenant.Context) *mongo.Collection {
	return r.base.Database(tn).Collection(ordersCollection)
}

func (r *OrderRepo) Create(ctx context.Context, tn tenant.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if _, err := r.col(tn).InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, tn tenant.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.col(tn).FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	return &o, nil
}

// statusTimestampField maps each target status to the timestamp it stamps.
func statusTimestampField(to order.Status) string {
	switch to {
	case order.StatusConfirmed:
		return "confirmed_at"
	case order.StatusInPreparation:
		return "preparing_at"
	case order.StatusReady:
		return "ready_at"
	case order.StatusDelivered:
		return "delivered_at"
	case order.StatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

func (r *OrderRepo) ClaimTransition(ctx context.Context, tn tenant.Context, id uuid.UUID, from []order.Status, to order.Status, at time.Time, reason string) (*order.Order, error) {
	set := bson.M{
		"status":     to,
		"updated_at": at,
	}
	if field := statusTimestampField(to); field != "" {
		set[field] = at
	}
	if to == order.StatusCancelled && reason != "" {
		set["cancel_reason"] = reason
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var o order.Order
	err := r.col(tn).FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot transition order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) RevertStatus(ctx context.Context, tn tenant.Context, id uuid.UUID, from, to order.Status) error {
	update := bson.M{
		"$set": bson.M{"status": to, "updated_at": time.Now()},
	}
	if field := statusTimestampField(from); field != "" {
		update["$unset"] = bson.M{field: ""}
	}
	res, err := r.col(tn).UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return fmt.Errorf("cannot revert order status: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("order %s no longer in %s", id, from)
	}
	return nil
}

func (r *OrderRepo) MarkPaid(ctx context.Context, tn tenant.Context, id uuid.UUID, method, ref string, at time.Time) (*order.Order, error) {
	filter := bson.M{
		"_id":  id,
		"paid": false,
		"status": bson.M{"$in": []order.Status{
			order.StatusPendingPayment,
			order.StatusPendingValidation,
			order.StatusConfirmed,
		}},
	}
	update := bson.M{"$set": bson.M{
		"paid":           true,
		"payment_method": method,
		"payment_ref":    ref,
		"paid_at":        at,
		"status":         order.StatusConfirmed,
		"confirmed_at":   at,
		"updated_at":     at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var o order.Order
	err := r.col(tn).FindOneAndUpdate(ctx, filter, update, opts).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot mark order paid: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) AppendTicket(ctx context.Context, tn tenant.Context, id uuid.UUID, ticketID uuid.UUID) error {
	res, err := r.col(tn).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"ticket_ids": ticketID},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("cannot append kitchen ticket: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

func (r *OrderRepo) PendingForPOS(ctx context.Context, tn tenant.Context, posID uuid.UUID) ([]*order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.col(tn).Find(ctx, bson.M{
		"pos_id": posID,
		"status": order.StatusPendingValidation,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list pending orders: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*order.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}
	return result, nil
}

func (r *OrderRepo) ListByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, limit int) ([]*order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := r.col(tn).Find(ctx, bson.M{"device_id": deviceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders by device: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*order.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}
	return result, nil
}

func (r *OrderRepo) CountByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error) {
	count, err := r.col(tn).CountDocuments(ctx, bson.M{"device_id": deviceID})
	if err != nil {
		return 0, fmt.Errorf("cannot count orders: %w", err)
	}
	return count, nil
}

// NextNumber bumps the per-day counter with an upsert, so the first order
// of a new day creates the counter document.
func (r *OrderRepo) NextNumber(ctx context.Context, tn tenant.Context, day string) (int64, error) {
	counters := r.base.Database(tn).Collection(countersCollection)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "orders:" + day},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("cannot allocate order number: %w", err)
	}
	return doc.Seq, nil
}
