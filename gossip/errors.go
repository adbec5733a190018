package gossip

import (
	goerrors "github.com/go-errors/errors"
)

// Kind enumerates the typed drop-reasons of spec.md §7.
type Kind uint8

const (
	ErrInvalidSignature Kind = iota
	ErrInvalidCertificate
	ErrInvalidProofOfWork
	ErrAskExpired
	ErrUnknownAskID
	ErrTopicRefused
	ErrDuplicateBroadcast
	ErrOnionPeerUnknown
	ErrPreimageMismatch
	ErrPaymentRefused
)

func (k Kind) String() string {
	switch k {
	case ErrInvalidSignature:
		return "invalid-signature"
	case ErrInvalidCertificate:
		return "invalid-certificate"
	case ErrInvalidProofOfWork:
		return "invalid-proof-of-work"
	case ErrAskExpired:
		return "ask-expired"
	case ErrUnknownAskID:
		return "unknown-ask-id"
	case ErrTopicRefused:
		return "topic-refused"
	case ErrDuplicateBroadcast:
		return "duplicate-broadcast"
	case ErrOnionPeerUnknown:
		return "onion-peer-unknown"
	case ErrPreimageMismatch:
		return "preimage-mismatch"
	case ErrPaymentRefused:
		return "payment-refused"
	default:
		return "unknown"
	}
}

// ProtocolError is a typed, stack-traced drop-reason. The engine never
// surfaces these to a caller (§7's "silently drop" policy); relayResponse
// logs the one makeInvoice returns at error level and drops the frame.
type ProtocolError struct {
	Kind  Kind
	cause *goerrors.Error
}

// newErr wraps msg as a ProtocolError of the given kind, capturing a stack
// trace at the point of detection the way htlcswitch/mock.go's use of
// go-errors/errors does for its injected link failures.
func newErr(kind Kind, msg string) *ProtocolError {
	return &ProtocolError{
		Kind:  kind,
		cause: goerrors.New(msg),
	}
}

func (e *ProtocolError) Error() string {
	return e.Kind.String() + ": " + e.cause.Error()
}

// Stack returns the stack trace captured at the point newErr was called,
// exposed for trace-level drop logging.
func (e *ProtocolError) Stack() []byte {
	return e.cause.Stack()
}
