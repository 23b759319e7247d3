package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
)

const tenantsCollection = "tenants"

// TenantRepo resolves tenants out of the control database. It implements
// both the directory and the license check.
type TenantRepo struct {
	base *BaseRepo
}

func NewTenantRepo(base *BaseRepo) *TenantRepo {
	return &TenantRepo{base: base}
}

type tenantDoc struct {
	ID            string `bson:"_id"`
	Database      string `bson:"database"`
	LicenseActive bool   `bson:"license_active"`
}

func (r *TenantRepo) get(ctx context.Context, tenantID string) (*tenantDoc, error) {
	var doc tenantDoc
	err := r.base.ControlDatabase().Collection(tenantsCollection).
		FindOne(ctx, bson.M{"_id": tenantID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get tenant: %w", err)
	}
	return &doc, nil
}

func (r *TenantRepo) Resolve(ctx context.Context, tenantID string) (tenant.Context, error) {
	doc, err := r.get(ctx, tenantID)
	if err != nil {
		return tenant.Context{}, err
	}
	if doc == nil {
		return tenant.Context{}, fmt.Errorf("tenant %q: %w", tenantID, fault.ErrNotFound)
	}
	return tenant.Context{ID: doc.ID, Database: doc.Database}, nil
}

// ListAll returns every tenant partition; the retention sweep iterates it.
func (r *TenantRepo) ListAll(ctx context.Context) ([]tenant.Context, error) {
	cursor, err := r.base.ControlDatabase().Collection(tenantsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("cannot list tenants: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []tenantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode tenants: %w", err)
	}

	result := make([]tenant.Context, 0, len(docs))
	for _, doc := range docs {
		result = append(result, tenant.Context{ID: doc.ID, Database: doc.Database})
	}
	return result, nil
}

func (r *TenantRepo) Active(ctx context.Context, tenantID string) (bool, error) {
	doc, err := r.get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	return doc.LicenseActive, nil
}
