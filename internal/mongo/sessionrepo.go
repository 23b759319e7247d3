package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/session"
	"github.com/comandaclub/comanda/internal/tenant"
)

const sessionsCollection = "kiosk_sessions"

type SessionRepo struct {
	base *BaseRepo
}

func NewSessionRepo(base *BaseRepo) *SessionRepo {
	return &SessionRepo{base: base}
}

func (r *SessionRepo) col(tn tenant.Context) *mongo.Collection {
	return r.base.Database(tn).Collection(sessionsCollection)
}

func (r *SessionRepo) Create(ctx context.Context, tn tenant.Context, s *session.Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if _, err := r.col(tn).InsertOne(ctx, s); err != nil {
		return fmt.Errorf("cannot create session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByToken(ctx context.Context, tn tenant.Context, token string) (*session.Session, error) {
	var s session.Session
	err := r.col(tn).FindOne(ctx, bson.M{"token": token}).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) ActiveTokenExists(ctx context.Context, tn tenant.Context, token string) (bool, error) {
	count, err := r.col(tn).CountDocuments(ctx, bson.M{
		"token": token,
		"state": session.StateActive,
	})
	if err != nil {
		return false, fmt.Errorf("cannot check session token: %w", err)
	}
	return count > 0, nil
}

// Save writes a session back only while the stored record is still active.
// A writer holding a snapshot that lost a race against Complete or a cascade
// expiry cannot flip the record back to active.
func (r *SessionRepo) Save(ctx context.Context, tn tenant.Context, s *session.Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	res, err := r.col(tn).ReplaceOne(ctx, bson.M{"_id": s.ID, "state": session.StateActive}, s)
	if err != nil {
		return fmt.Errorf("cannot save session: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("session %s is no longer active: %w", s.ID, fault.ErrInvalidState)
	}
	return nil
}

// Complete transitions active to completed in one conditional update, so a
// session can be consumed by at most one order.
func (r *SessionRepo) Complete(ctx context.Context, tn tenant.Context, token string, orderID uuid.UUID, at time.Time) (*session.Session, error) {
	filter := bson.M{"token": token, "state": session.StateActive}
	update := bson.M{"$set": bson.M{
		"state":      session.StateCompleted,
		"order_id":   orderID,
		"updated_at": at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var s session.Session
	err := r.col(tn).FindOneAndUpdate(ctx, filter, update, opts).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot complete session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) MarkExpired(ctx context.Context, tn tenant.Context, id uuid.UUID) error {
	_, err := r.col(tn).UpdateOne(ctx,
		bson.M{"_id": id, "state": session.StateActive},
		bson.M{"$set": bson.M{"state": session.StateExpired, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("cannot expire session: %w", err)
	}
	return nil
}

func (r *SessionRepo) ExpireAllActive(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error) {
	res, err := r.col(tn).UpdateMany(ctx,
		bson.M{"device_id": deviceID, "state": session.StateActive},
		bson.M{"$set": bson.M{"state": session.StateExpired, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("cannot expire device sessions: %w", err)
	}
	return res.ModifiedCount, nil
}
