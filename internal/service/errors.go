package service

import (
    "fmt"
    "strings"
)

// The service layer surfaces failures as a small set of typed errors so
// that handlers can translate them into HTTP responses without losing
// the offending seat ids or rejection reason.  Use errors.As to match.

// ValidationError reports malformed or disallowed input, such as the
// combo-unit cap being exceeded or an empty seat selection.
type ValidationError struct {
    Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// ConflictError reports state that prevents the operation: seats held
// by another session, a mutation against a terminal session, or a
// checkout raced by another one.  SeatIDs names contested seats when
// the conflict is about seat locks.
type ConflictError struct {
    Reason  string
    SeatIDs []uint64
}

func (e *ConflictError) Error() string {
    if len(e.SeatIDs) == 0 {
        return "conflict: " + e.Reason
    }
    ids := make([]string, 0, len(e.SeatIDs))
    for _, id := range e.SeatIDs {
        ids = append(ids, fmt.Sprint(id))
    }
    return fmt.Sprintf("conflict: %s (seats %s)", e.Reason, strings.Join(ids, ","))
}

// NotFoundError reports an unknown or expired resource.
type NotFoundError struct {
    Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// UnauthorizedError reports a missing or mismatched owner identity,
// e.g. voucher operations on an anonymous session.
type UnauthorizedError struct {
    Reason string
}

func (e *UnauthorizedError) Error() string { return "unauthorized: " + e.Reason }

// GatewayError wraps a payment-provider failure.  Handlers map it to a
// generic 5xx without leaking provider internals.
type GatewayError struct {
    Op  string
    Err error
}

func (e *GatewayError) Error() string { return "payment gateway " + e.Op + ": " + e.Err.Error() }

func (e *GatewayError) Unwrap() error { return e.Err }
