package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sdk-bridge/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the global traffic subject.
	GlobalSubject string
	// SkipGranular disables the per-operation subject.
	SkipGranular bool
}

// CommsPublisher publishes traffic events to COMMS subjects.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
	granular      bool
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, globalSubject: commsutil.SubjectTraffic, granular: true}
	if opts != nil {
		if opts.GlobalSubject != "" {
			p.globalSubject = opts.GlobalSubject
		}
		p.granular = !opts.SkipGranular
	}
	return p
}

// PublishTraffic publishes a TrafficEvent to the global subject and, unless
// disabled, to the per-operation subject.
func (p *CommsPublisher) PublishTraffic(_ context.Context, event *TrafficEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	if p.granular {
		subject := commsutil.BuildTrafficSubject(event.Module, event.Operation)
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return err
		}
	}

	if err := p.nc.Publish(p.globalSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.globalSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s.%s", commsPublisherLogPrefix, event.Direction, event.Module, event.Operation))
	return nil
}
