package authz

import (
	"errors"

	"github.com/geocoder89/taskflow/internal/identity"
)

var (
	ErrUnauthenticated = identity.ErrUnauthenticated
	ErrForbidden       = errors.New("not enough permissions")
)
