package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("interval unavailable")
	ErrPolicyViolation    = errors.New("policy violation")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrStaleUpdate        = errors.New("stale update")
	ErrInventoryExhausted = errors.New("inventory exhausted")
)

// ConflictError reports that the requested interval or quantity is no longer
// available on the resource at write time. Callers should pick another slot.
type ConflictError struct {
	ResourceID uuid.UUID
	Interval   Interval
	Reason     string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("resource %s unavailable for %s", e.ResourceID, e.Interval)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type PolicyViolationError struct {
	Rule   string
	Detail string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Detail)
}

func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }

type InvalidTransitionError struct {
	ReservationID uuid.UUID
	From          Status
	Action        Action
	Detail        string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("reservation %s: cannot %s from %s", e.ReservationID, e.Action, e.From)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// StaleUpdateError means the caller's version is behind the stored one.
// Re-read the reservation and retry, or surface the conflict.
type StaleUpdateError struct {
	ReservationID   uuid.UUID
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *StaleUpdateError) Error() string {
	return fmt.Sprintf("reservation %s: expected version %d, stored version %d",
		e.ReservationID, e.ExpectedVersion, e.ActualVersion)
}

func (e *StaleUpdateError) Is(target error) bool { return target == ErrStaleUpdate }

type InventoryExhaustedError struct {
	ResourceID uuid.UUID
	Requested  int
	Remaining  int
}

func (e *InventoryExhaustedError) Error() string {
	return fmt.Sprintf("resource %s: requested %d, only %d remaining", e.ResourceID, e.Requested, e.Remaining)
}

func (e *InventoryExhaustedError) Is(target error) bool { return target == ErrInventoryExhausted }

func NewConflictError(resourceID uuid.UUID, iv Interval, reason string) *ConflictError {
	return &ConflictError{ResourceID: resourceID, Interval: iv, Reason: reason}
}

func NewPolicyViolation(rule, format string, args ...any) *PolicyViolationError {
	return &PolicyViolationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// timestamps in error messages are always rendered in UTC
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
