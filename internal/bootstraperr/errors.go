// Package bootstraperr defines the error taxonomy shared by every bootstrap
// component (wireformat, client, server, accesslist, scheduler, bootstrap).
package bootstraperr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors matching the §7 taxonomy that carry no extra payload.
var (
	ErrIo                      = errors.New("bootstrap: io error")
	ErrTimeout                 = errors.New("bootstrap: timeout")
	ErrFrameTooLarge           = errors.New("bootstrap: frame too large")
	ErrMessageTooLarge         = errors.New("bootstrap: message too large")
	ErrBadSignature            = errors.New("bootstrap: bad signature")
	ErrDeserialize             = errors.New("bootstrap: deserialize error")
	ErrUnexpectedClientMessage = errors.New("bootstrap: unexpected client message")
	ErrFutureSlot              = errors.New("bootstrap: client reports a slot ahead of the server")
	ErrInvalidSlot             = errors.New("bootstrap: invalid slot")

	ErrBlacklisted      = errors.New("bootstrap: peer is blacklisted")
	ErrNotWhitelisted   = errors.New("bootstrap: peer is not whitelisted")
	ErrNoSlotsAvailable = errors.New("bootstrap: no slots available")
)

// ReceivedError wraps a BootstrapError payload sent by the remote peer.
type ReceivedError struct {
	Text string
}

func (e *ReceivedError) Error() string {
	return fmt.Sprintf("bootstrap: peer reported an error: %s", e.Text)
}

// TooSoon is the admission error raised by the per-IP cool-down guard (§4.5).
type TooSoon struct {
	Remaining time.Duration
}

func (e *TooSoon) Error() string {
	return fmt.Sprintf("bootstrap: too soon, retry in %s", e.Remaining)
}

// Wrap adds context to err, matching the teacher's pkg/utils.Wrap idiom.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
