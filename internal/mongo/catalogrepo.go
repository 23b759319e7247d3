package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comandaclub/comanda/internal/catalog"
	"github.com/comandaclub/comanda/internal/tenant"
)

const catalogCollection = "kiosk_catalog_snapshots"

// CatalogRepo reads the published snapshots the menu side writes. This
// subsystem never writes to the collection.
type CatalogRepo struct {
	base *BaseRepo
}

func NewCatalogRepo(base *BaseRepo) *CatalogRepo {
	return &CatalogRepo{base: base}
}

func (r *CatalogRepo) Latest(ctx context.Context, tn tenant.Context) (*catalog.Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})

	var snap catalog.Snapshot
	err := r.base.Database(tn).Collection(catalogCollection).
		FindOne(ctx, bson.M{}, opts).Decode(&snap)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get catalog snapshot: %w", err)
	}
	return &snap, nil
}
