package types

import "errors"

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrOutOfBounds        = errors.New("out of bounds")
	ErrPropertyNotFound   = errors.New("property not found")
	ErrInversionFailed    = errors.New("inversion failed")
	ErrUpstreamEvaluation = errors.New("upstream evaluation error")
)

// Status is the per-point outcome of a reference evaluation, persisted as int32.
// Larger codes are worse.
type Status int32

const (
	StatusOK Status = iota
	StatusDegraded
	StatusUpstreamFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusUpstreamFailure:
		return "upstream-failure"
	}
	return "unknown"
}

func (s Status) OK() bool { return s == StatusOK }

// Worst combines the statuses of the nodes of a segment or a cell
func Worst(st ...Status) (w Status) {
	for _, s := range st {
		if s > w {
			w = s
		}
	}
	return
}

// Err maps a failing status onto ErrUpstreamEvaluation, nil otherwise
func (s Status) Err() error {
	if s.OK() {
		return nil
	}
	return ErrUpstreamEvaluation
}
