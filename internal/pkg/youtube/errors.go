package youtube

import "errors"

var (
	ErrVideoNotFound     = errors.New("video not found")
	ErrChannelNotFound   = errors.New("no channel found")
	ErrReconnectRequired = errors.New("youtube connection invalid, user must reconnect")
)
