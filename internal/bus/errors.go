package bus

import (
	"context"
	"errors"
	"net"

	amqp "github.com/rabbitmq/amqp091-go"
)

// FailureKind classifies a connection-loop error so that failure handling is
// testable independently of the loop's control flow. Transport and protocol
// failures share the same retry policy; they differ only in how they are
// reported.
type FailureKind int

const (
	FailureTransport FailureKind = iota
	FailureProtocol
	FailureCancellation
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureProtocol:
		return "protocol"
	case FailureCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Classify maps err to its failure kind. Broker-level rejections (bad
// credentials, malformed handshake) are protocol failures; everything that
// never got a broker answer is transport.
func Classify(err error) FailureKind {
	var amqpErr *amqp.Error
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return FailureCancellation
	case errors.Is(err, amqp.ErrClosed):
		return FailureTransport
	case errors.As(err, &amqpErr):
		return FailureProtocol
	case errors.As(err, &netErr):
		return FailureTransport
	default:
		return FailureTransport
	}
}
