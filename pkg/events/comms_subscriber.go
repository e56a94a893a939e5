package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sdk-bridge/pkg/commsutil"
)

const commsSubscriberLogPrefix = "events:comms_subscriber"

// SubscribeTraffic forwards every traffic event published on subject to
// sink. Undecodable messages are logged and skipped. An empty subject means
// the global traffic subject.
func SubscribeTraffic(nc *comms.Conn, subject string, sink EventPublisher, timeout time.Duration) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectTraffic
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event TrafficEvent
		if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to decode event on %s: %v", commsSubscriberLogPrefix, msg.Subject, err))
			return
		}
		if event.ID == "" || event.Module == "" {
			slog.Warn(fmt.Sprintf("%s - dropping event without id or module on %s", commsSubscriberLogPrefix, msg.Subject))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := sink.PublishTraffic(ctx, &event); err != nil {
			slog.Error(fmt.Sprintf("%s - %v", commsSubscriberLogPrefix, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsSubscriberLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", commsSubscriberLogPrefix, subject))
	return sub, nil
}
