package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comandaclub/comanda/internal/tenant"
)

// BaseRepo owns the shared client. Tenant data lives in per-tenant
// databases resolved through tenant.Context; the control database holds
// the tenant directory itself.
type BaseRepo struct {
	client    *mongo.Client
	controlDB *mongo.Database
	logger    apt.Logger
	config    *apt.Config
}

func NewBaseRepo(config *apt.Config, logger apt.Logger) *BaseRepo {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &BaseRepo{
		logger: logger,
		config: config,
	}
}

func (r *BaseRepo) Start(ctx context.Context) error {
	connString := r.config.GetStringOrDef("db.mongo.url", "mongodb://localhost:27017")
	controlName := r.config.GetStringOrDef("db.mongo.controldb", "comanda_control")

	clientOptions := options.Client().ApplyURI(connString).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.controlDB = client.Database(controlName)

	r.logger.Infof("Connected to MongoDB: %s, control database: %s", connString, controlName)
	return nil
}

func (r *BaseRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

// Database returns the tenant's data partition.
func (r *BaseRepo) Database(tn tenant.Context) *mongo.Database {
	return r.client.Database(tn.Database)
}

func (r *BaseRepo) ControlDatabase() *mongo.Database {
	return r.controlDB
}
