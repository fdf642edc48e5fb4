package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrProtocol         = fmt.Errorf("protocol violation")
	ErrIdentityConflict = fmt.Errorf("username already registered")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrDelivery         = fmt.Errorf("delivery failed")
	ErrSessionClosed    = fmt.Errorf("session closed")
	ErrInvalidConfig    = fmt.Errorf("invalid configuration")
)

// Is lets callers importing this package match wrapped sentinels without a
// second import of the standard errors package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
