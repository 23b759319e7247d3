package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
)

const activationTokensCollection = "kiosk_activation_tokens"

type ActivationTokenRepo struct {
	base *BaseRepo
}

func NewActivationTokenRepo(base *BaseRepo) *ActivationTokenRepo {
	return &ActivationTokenRepo{base: base}
}

func (r *ActivationTokenRepo) col(tn tenant.Context) *mongo.Collection {
	return r.base.Database(tn).Collection(activationTokensCollection)
}

func (r *ActivationTokenRepo) Create(ctx context.Context, tn tenant.Context, t *kiosk.ActivationToken) error {
	if t == nil {
		return fmt.Errorf("activation token is nil")
	}
	if _, err := r.col(tn).InsertOne(ctx, t); err != nil {
		return fmt.Errorf("cannot create activation token: %w", err)
	}
	return nil
}

func (r *ActivationTokenRepo) ExpireUnused(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) error {
	_, err := r.col(tn).UpdateMany(ctx,
		bson.M{"device_id": deviceID, "used": false},
		bson.M{"$set": bson.M{"expires_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("cannot expire activation tokens: %w", err)
	}
	return nil
}

func (r *ActivationTokenRepo) UnusedCodeExists(ctx context.Context, tn tenant.Context, codeHash string) (bool, error) {
	count, err := r.col(tn).CountDocuments(ctx, bson.M{
		"code_hash":  codeHash,
		"used":       false,
		"expires_at": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return false, fmt.Errorf("cannot check activation code: %w", err)
	}
	return count > 0, nil
}

// FindUnused resolves a live token by code digest without touching it, so
// callers can run precondition checks before burning the code.
func (r *ActivationTokenRepo) FindUnused(ctx context.Context, tn tenant.Context, codeHash string, at time.Time) (*kiosk.ActivationToken, error) {
	filter := bson.M{
		"code_hash":  codeHash,
		"used":       false,
		"expires_at": bson.M{"$gt": at},
	}
	var t kiosk.ActivationToken
	err := r.col(tn).FindOne(ctx, filter).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot find activation token: %w", err)
	}
	return &t, nil
}

// Consume flips the token to used in a single conditional update, so two
// concurrent redeems of the same code cannot both succeed.
func (r *ActivationTokenRepo) Consume(ctx context.Context, tn tenant.Context, codeHash string, at time.Time, fromIP string) (*kiosk.ActivationToken, error) {
	filter := bson.M{
		"code_hash":  codeHash,
		"used":       false,
		"expires_at": bson.M{"$gt": at},
	}
	update := bson.M{"$set": bson.M{
		"used":         true,
		"used_at":      at,
		"used_from_ip": fromIP,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var t kiosk.ActivationToken
	err := r.col(tn).FindOneAndUpdate(ctx, filter, update, opts).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot consume activation token: %w", err)
	}
	return &t, nil
}

func (r *ActivationTokenRepo) DeleteExpiredBefore(ctx context.Context, tn tenant.Context, cutoff time.Time) (int64, error) {
	res, err := r.col(tn).DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("cannot reclaim activation tokens: %w", err)
	}
	return res.DeletedCount, nil
}
