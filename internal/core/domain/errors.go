package domain

import "errors"

var (
	ErrPeerNotFound         = errors.New("peer not found")
	ErrAccountNotFound      = errors.New("account endpoint not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrServerAlreadyRunning = errors.New("mirror server already running")
	ErrServerNotRunning     = errors.New("mirror server not running")
	ErrProbeFailed          = errors.New("transport probe failed")
	ErrInvalidConfig        = errors.New("invalid configuration")
)
