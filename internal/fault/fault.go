package fault

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpired            = errors.New("expired")
	ErrInvalidState       = errors.New("invalid state")
	ErrConflict           = errors.New("conflict")
	ErrDependency         = errors.New("dependency failure")
	ErrPolicy             = errors.New("policy violation")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency)
}

func IsPolicy(err error) bool {
	return errors.Is(err, ErrPolicy)
}

// HTTPStatus maps a classified error to the status code handlers respond
// with. Unclassified errors are internal.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidCredentials(err):
		return http.StatusUnauthorized
	case IsExpired(err):
		return http.StatusGone
	case IsInvalidState(err):
		return http.StatusConflict
	case IsConflict(err):
		return http.StatusConflict
	case IsPolicy(err):
		return http.StatusUnprocessableEntity
	case IsDependency(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
