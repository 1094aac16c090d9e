package node

import "errors"

var (
	ErrConfigRequired      = errors.New("config is required")
	ErrNameRequired        = errors.New("process name is required")
	ErrHostRequired        = errors.New("host is required")
	ErrInvalidPort         = errors.New("port must be between 1 and 65535")
	ErrInvalidIntroducer   = errors.New("introducer must be host:port")
	ErrInvalidCount        = errors.New("process count must be at least 1")
	ErrPortRangeExhausted  = errors.New("port range cannot fit every process")
	ErrInvalidDuration     = errors.New("run duration must be positive")
	ErrInvalidIntroducerIx = errors.New("introducer index out of range")
	ErrInvalidFailIndex    = errors.New("fail index must name a process other than the introducer")
	ErrInvalidDropRate     = errors.New("drop rate must be in [0,1)")
	ErrNodeNotStarted      = errors.New("node transport not started")
	ErrSimulationRunning   = errors.New("simulation already running")
)
