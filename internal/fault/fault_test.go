package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrNotFound))
	if !IsNotFound(err) {
		t.Error("IsNotFound() should match through wrapping")
	}
	if IsConflict(err) {
		t.Error("IsConflict() should not match an unrelated classification")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"notFound", ErrNotFound, http.StatusNotFound},
		{"invalidCredentials", ErrInvalidCredentials, http.StatusUnauthorized},
		{"expired", ErrExpired, http.StatusGone},
		{"invalidState", ErrInvalidState, http.StatusConflict},
		{"conflict", ErrConflict, http.StatusConflict},
		{"policy", ErrPolicy, http.StatusUnprocessableEntity},
		{"dependency", ErrDependency, http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("cannot do thing: %w", ErrPolicy), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
