package gossip

import "errors"

var (
	ErrInvalidEndPoint    = errors.New("invalid endpoint")
	ErrMalformedMessage   = errors.New("malformed membership message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMessageTooLarge    = errors.New("message exceeds payload cap")

	ErrSelfRequired        = errors.New("self endpoint is required")
	ErrIntroducerRequired  = errors.New("introducer endpoint is required")
	ErrInvalidGossipPeriod = errors.New("gossip interval must be positive")
	ErrInvalidTimeout      = errors.New("failure timeouts must not be negative")
	ErrInvalidFanout       = errors.New("gossip fan-out must be at least 1")
	ErrInvalidListSize     = errors.New("membership list bound must be at least the fan-out")
	ErrInvalidPayloadSize  = errors.New("max payload size is too small")

	ErrMessengerRequired = errors.New("message service is required")
	ErrNotInitialized    = errors.New("node not initialized: call InitNode first")
	ErrExited            = errors.New("failure detector has exited")
)
