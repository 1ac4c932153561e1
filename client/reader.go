package client

import (
	"context"

	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/message"
)

// Reader iterates a topic from an explicit start position without a durable
// subscription. It is a consumer under an ephemeral subscription name, so
// it counts as a consumer in the session registry. A handle whose creation
// failed reports ConsumerNotInitialized on every operation.
type Reader struct {
	core consumerCore
}

// Topic returns the topic being read, or "" when the reader never
// initialized.
func (r *Reader) Topic() string {
	if r == nil || r.core == nil {
		return ""
	}
	return r.core.Topic()
}

// Next blocks until the next message is available, ctx fires, or the
// reader dies.
func (r *Reader) Next(ctx context.Context) (*message.Message, error) {
	if r == nil || r.core == nil {
		return nil, errors.Outcome(errors.ResultConsumerNotInitialized)
	}
	return r.core.Receive(ctx)
}

// Close releases the reader's broker resources
func (r *Reader) Close() error {
	if r == nil || r.core == nil {
		return errors.Outcome(errors.ResultConsumerNotInitialized)
	}
	return r.core.Close()
}
