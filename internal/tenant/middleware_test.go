package tenant

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/appetiteclub/apt"
)

type mockDirectory struct {
	tenants map[string]Context
}

func (m *mockDirectory) Resolve(ctx context.Context, tenantID string) (Context, error) {
	tn, ok := m.tenants[tenantID]
	if !ok {
		return Context{}, fmt.Errorf("tenant %q not found", tenantID)
	}
	return tn, nil
}

func TestMiddleware(t *testing.T) {
	dir := &mockDirectory{tenants: map[string]Context{
		"demo": {ID: "demo", Database: "comanda_demo"},
	}}
	mw := Middleware(dir, apt.NewNoopLogger())

	var seen Context
	var seenOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = FromRequest(r)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("resolvesKnownTenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/devices", nil)
		req.Header.Set(HeaderName, "demo")
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if !seenOK || seen.Database != "comanda_demo" {
			t.Errorf("tenant context = %+v (ok=%v)", seen, seenOK)
		}
	})

	t.Run("rejectsUnknownTenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/devices", nil)
		req.Header.Set(HeaderName, "ghost")
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("passesThroughWithoutHeader", func(t *testing.T) {
		seenOK = true
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		mw(next).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if seenOK {
			t.Error("request without header should carry no tenant context")
		}
	})
}
