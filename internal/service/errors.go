package service

import "errors"

// Failure taxonomy of the booking lifecycle. Validation failures are detected
// before any write and leave state untouched; conflicts detected at write
// time are normalized to the same sentinels after a forced day-state re-read.
var (
	ErrNotVerified              = errors.New("account is not verified yet")
	ErrAlreadyBooked            = errors.New("user already has an active booking for that day")
	ErrSpotTaken                = errors.New("spot already has an active booking for that day")
	ErrSpotBlocked              = errors.New("spot is blocked for that day")
	ErrSpotUnavailable          = errors.New("spot is reserved for an executive")
	ErrNoExecutiveSpotAvailable = errors.New("no unassigned executive spot available")
	ErrPermissionDenied         = errors.New("operation not allowed for this user")
	ErrBookingFinal             = errors.New("booking is cancelled and can no longer change")
	ErrInvalidDate              = errors.New("invalid calendar date")
	ErrInvalidStatus            = errors.New("invalid booking status")
	ErrOperationInFlight        = errors.New("a previous request for this operation is still in flight")
)
