// Copyright 2024-2026 Aiku AI

package monitor

import (
	"errors"
	"fmt"
)

// AuthError reports a failed or missing authentication. It is fatal to the
// operation that hit it and is never retried automatically.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ErrNotAuthenticated is returned by every operation invoked before a
// successful login.
var ErrNotAuthenticated = &AuthError{Message: "not authenticated, log in first"}

// TransportError reports a network or timeout failure talking to the
// homeserver. The sync pump retries these with backoff; everything else
// surfaces them immediately.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var (
	// ErrAlreadyExists is returned by Register when the account is taken.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrAlreadyDone marks an idempotent room operation that had already
	// been applied (joining a joined room, leaving a left one).
	ErrAlreadyDone = errors.New("already done")
	// ErrQRTimeout means the bridge bot produced no login code before the
	// orchestration deadline. The temporary room is still cleaned up.
	ErrQRTimeout = errors.New("bridge bot did not produce a login code in time")
	// ErrUnknownPlatform is returned for a platform name absent from the
	// registry.
	ErrUnknownPlatform = errors.New("unknown platform")
)
