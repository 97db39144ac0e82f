package account

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNotConnected    = errors.New("youtube account not connected")
)
