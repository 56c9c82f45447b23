package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Payment lifecycle errors
	ErrMalformedCallback    = errors.New("callback carries no order id and no payment id")
	ErrCaptureFailed        = errors.New("gateway rejected capture")
	ErrVerificationTimeout  = errors.New("payment still pending after polling budget")
	ErrTransactionTerminal  = errors.New("transaction already in a terminal status")
	ErrBadSignature         = errors.New("webhook signature verification failed")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrSweepLocked          = errors.New("another sweep is already running")
)
