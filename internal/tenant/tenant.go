package tenant

import "context"

// Context identifies one tenant's isolated data partition. It is passed
// explicitly into every repository call; nothing tenant-scoped is resolved
// through ambient state.
type Context struct {
	ID       string `json:"id" bson:"_id"`
	Database string `json:"database" bson:"database"`
}

// Directory resolves a tenant id to its data-partition context.
type Directory interface {
	Resolve(ctx context.Context, tenantID string) (Context, error)
}

// LicenseChecker reports whether a tenant's license is currently active.
// Consulted before issuing activation tokens; the implementation lives
// outside this subsystem.
type LicenseChecker interface {
	Active(ctx context.Context, tenantID string) (bool, error)
}
