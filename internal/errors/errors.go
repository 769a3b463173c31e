package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session coordinator
var (
	// Token errors
	ErrDecode          = errors.New("unable to decode token")
	ErrRefreshFailed   = errors.New("token refresh failed")
	ErrNoRefreshToken  = errors.New("no refresh token, please login again")
	ErrAuthUnavailable = errors.New("no valid access token available")

	// Tenant errors
	ErrSwitchFailed     = errors.New("failed to switch tenant")
	ErrSwitchInProgress = errors.New("tenant switch already in progress")
	ErrTenantNotFound   = errors.New("tenant not found")

	// Association errors
	ErrAssociationFetch   = errors.New("failed to fetch user associations")
	ErrInvalidAssociation = errors.New("invalid associations payload")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrLoginFailed      = errors.New("login failed")
	ErrCreateFailed     = errors.New("create failed")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnsupported    = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
