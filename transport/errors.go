package transport

import "errors"

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrDecoderRequired = errors.New("decoder is required")
	ErrBind            = errors.New("failed to bind socket")
	ErrNotStarted      = errors.New("transport not started")
	ErrAlreadyStarted  = errors.New("transport already started")
	ErrClosed          = errors.New("transport closed")
	ErrPayloadTooLarge = errors.New("payload exceeds max datagram size")
)
