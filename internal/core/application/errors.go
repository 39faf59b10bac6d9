package application

import "errors"

var (
	ErrConsignmentPost   = errors.New("failed to post consignment")
	ErrFundingInProgress = errors.New("another funding is still in progress")
	ErrPortNotReleased   = errors.New("peer port not released")
	ErrAlreadyStarted    = errors.New("service already started")
	ErrNotStarted        = errors.New("service not started")
	errNotSegwitFunding  = errors.New("funding output script is not a segwit program")
)
