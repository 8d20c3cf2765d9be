package queue

import "errors"

var (
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrJobNotFound  = errors.New("import job not found")
	ErrJobExists    = errors.New("import job already exists")
	ErrJobNotActive = errors.New("import job is not being processed")
	ErrLeaseLost    = errors.New("import job lease was lost")
	ErrPoisonedJob  = errors.New("import job record failed integrity validation")
	ErrTxContention = errors.New("too many concurrent updates to import job")

	ErrInvalidTransition = errors.New("invalid import job state transition")

	errSkipMutation = errors.New("mutation skipped")
)
