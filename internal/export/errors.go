package export

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrChannelNotFound marks a requested channel name that matched nothing
	// in the catalog. It is absorbed by the selector and never fatal.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrMasterChannelMissing is returned by nearest alignment when the master
	// channel is absent from a lap that has other channels.
	ErrMasterChannelMissing = errors.New("master channel missing")

	// ErrInvalidTimestamp marks a NaN, infinite or decreasing timestamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrLoadFailure marks catalog data that could not be supplied.
	ErrLoadFailure = errors.New("load failure")

	// ErrWriteFailure marks a failed write or flush of the output sink.
	ErrWriteFailure = errors.New("write failure")
)

// LapError attaches lap and channel context to a fatal export error.
// Lap is the 0-based lap index, or -1 for run-level failures; the message
// shows it 1-based to match the lap column of the output.
type LapError struct {
	Lap     int
	Channel string
	Err     error
}

func (e *LapError) Error() string {
	switch {
	case e.Lap < 0 && e.Channel == "":
		return e.Err.Error()
	case e.Lap < 0:
		return fmt.Sprintf("channel %q: %v", e.Channel, e.Err)
	case e.Channel == "":
		return fmt.Sprintf("lap %d: %v", e.Lap+1, e.Err)
	default:
		return fmt.Sprintf("lap %d: channel %q: %v", e.Lap+1, e.Channel, e.Err)
	}
}

func (e *LapError) Unwrap() error { return e.Err }

// channelError carries the offending channel out of a strategy so the
// exporter can wrap it with the lap.
type channelError struct {
	channel string
	err     error
}

func (e *channelError) Error() string { return fmt.Sprintf("channel %q: %v", e.channel, e.err) }

func (e *channelError) Unwrap() error { return e.err }

// lapError wraps err with lap context, lifting the channel name out of a
// channelError when there is one.
func lapError(lap int, err error) error {
	var le *LapError
	if errors.As(err, &le) {
		return err
	}
	var ce *channelError
	if errors.As(err, &ce) {
		return &LapError{Lap: lap, Channel: ce.channel, Err: ce.err}
	}
	return &LapError{Lap: lap, Err: err}
}

// FailureReason maps an export error to a short label for metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMasterChannelMissing):
		return "master_channel_missing"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ErrLoadFailure):
		return "load_failure"
	case errors.Is(err, ErrWriteFailure):
		return "write_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
