package recovery_service

import "errors"

// Recovery protocol errors. Handlers map these onto HTTP statuses.
var (
	ErrUnauthorized          = errors.New("caller is not allowed to perform this operation")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrRequestNotFound       = errors.New("no recovery request found")
	ErrInsufficientGuardians = errors.New("wallet does not have enough accepted guardians")
	ErrRecoveryInProgress    = errors.New("a recovery request is already pending for this wallet")
	ErrInvalidCode           = errors.New("recovery code does not match")
	ErrExpired               = errors.New("recovery request has expired")
	ErrInvalidAddress        = errors.New("invalid new owner address")
)
