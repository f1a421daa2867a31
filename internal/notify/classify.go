package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/wastewise/taskcore/internal/domain"
)

// SendError is a transport failure with an explicit permanence flag.
type SendError struct {
	StatusCode int
	Message    string
	Permanent  bool
	Cause      error
}

func (e *SendError) Error() string {
	parts := make([]string, 0, 3)
	parts = append(parts, "send error")
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *SendError) Unwrap() error { return e.Cause }

// Permanent builds a SendError for failures where retrying the same send
// cannot plausibly succeed (validation, auth, recipient rejection).
func Permanent(msg string, cause error) *SendError {
	return &SendError{Message: msg, Permanent: true, Cause: cause}
}

// Temporary builds a SendError for transient failures (I/O, timeouts,
// provider overload).
func Temporary(msg string, cause error) *SendError {
	return &SendError{Message: msg, Cause: cause}
}

// Classify judges whether retrying err could plausibly succeed later.
// Unknown errors classify as TEMPORARY: the retry ceiling escalates them to
// PERMANENT if they keep failing, while a wrong PERMANENT verdict would drop
// a deliverable message.
func Classify(err error) domain.FailureType {
	if errors.Is(err, context.Canceled) {
		return domain.FailureTemporary
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTemporary
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		if sendErr.Permanent {
			return domain.FailurePermanent
		}
		return domain.FailureTemporary
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.FailureTemporary
	}

	return domain.FailureTemporary
}
