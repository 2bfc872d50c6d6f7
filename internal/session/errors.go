package session

import (
	"errors"
	"strings"

	"github.com/alecci-media/boardroom/internal/protocol"
)

var (
	// ErrBusy is returned when a send or resume is attempted while a
	// stream is already in flight.
	ErrBusy = errors.New("a response is already streaming")
	// ErrNoActiveStream means the server has nothing to resume.
	ErrNoActiveStream = errors.New("no active stream")
)

// gatewayCardMessage is the provider text that means billing must be fixed
// before any request will succeed.
const gatewayCardMessage = "AI Gateway requires a valid credit card"

// Severity decides how an error reaches the user.
type Severity int

const (
	// Silent errors are logged for operators only.
	Silent Severity = iota
	// Transient errors show a dismissible notice.
	Transient
	// Blocking errors require a remediation step before continuing.
	Blocking
)

func (s Severity) String() string {
	switch s {
	case Blocking:
		return "blocking"
	case Transient:
		return "transient"
	default:
		return "silent"
	}
}

// Classify maps err to a Severity. Only *protocol.ChatError values are ever
// shown to the user.
func Classify(err error) Severity {
	var chatErr *protocol.ChatError
	if !errors.As(err, &chatErr) {
		return Silent
	}
	if chatErr.Code == protocol.CodePaymentRequired || strings.Contains(chatErr.Message, gatewayCardMessage) {
		return Blocking
	}
	return Transient
}

// Notifier surfaces classified errors and notices.
type Notifier interface {
	// Block presents a modal that must be acted on.
	Block(err *protocol.ChatError)
	// Toast presents a dismissible notice.
	Toast(message string)
}

type nopNotifier struct{}

func (nopNotifier) Block(*protocol.ChatError) {}
func (nopNotifier) Toast(string)              {}
