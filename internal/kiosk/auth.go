package kiosk

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
)

// AccessTokenTTL bounds device bearer tokens; devices re-authenticate with
// their secret when one lapses.
const AccessTokenTTL = 12 * time.Hour

type AccessClaims struct {
	DeviceID     string `json:"device_id"`
	TenantID     string `json:"tenant_id"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

// IssueAccessToken mints a bearer token for an already-verified device. The
// embedded token version ties its validity to the device's current secret
// generation; RotateSecret bumps the counter and cuts off every outstanding
// token at once.
func (r *Registry) IssueAccessToken(tn tenant.Context, d *Device) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		DeviceID:     d.ID.String(),
		TenantID:     tn.ID,
		TokenVersion: d.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   d.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.signKey)
	if err != nil {
		return "", fmt.Errorf("cannot sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken resolves the device behind a bearer token, rejecting
// tokens from a previous secret generation or for non-active devices.
func (r *Registry) VerifyAccessToken(ctx context.Context, tn tenant.Context, tokenString string) (*Device, error) {
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("access token rejected: %w", fault.ErrInvalidCredentials)
	}
	if claims.TenantID != tn.ID {
		return nil, fmt.Errorf("access token rejected: %w", fault.ErrInvalidCredentials)
	}

	deviceID, err := uuid.Parse(claims.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("access token rejected: %w", fault.ErrInvalidCredentials)
	}
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.Operational() || d.TokenVersion != claims.TokenVersion {
		return nil, fmt.Errorf("access token rejected: %w", fault.ErrInvalidCredentials)
	}
	return d, nil
}
