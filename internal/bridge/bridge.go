// Package bridge connects one bus instance to the shared broadcast channel so
// independently mounted fragment hosts observe the same event stream.
// Delivery across hosts is best effort: no acknowledgment, no retry, no
// cross-host ordering guarantee.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mfeshop/checkout-bus/internal/bus"
)

// Channel is the fixed broadcast channel every bridged host subscribes to.
const Channel = "mfe:events"

// envelope is the cross-host wire frame. Origin identifies the emitting bus
// instance; a receiver discards frames stamped with its own origin, which is
// what keeps two bridged buses from echoing events back and forth forever.
type envelope struct {
	Origin string    `json:"origin"`
	Event  bus.Event `json:"event"`
}

// Bridge forwards locally emitted events outward and re-injects foreign ones
// into the local bus.
type Bridge struct {
	client    redis.UniversalClient
	ownClient bool
	b         *bus.Bus
	logger    *slog.Logger
	origin    string
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Connect dials redisURL and attaches the bus to the broadcast channel.
func Connect(ctx context.Context, redisURL string, b *bus.Bus, logger *slog.Logger) (*Bridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	br, err := attach(ctx, client, b, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	br.ownClient = true
	return br, nil
}

// New attaches the bus to the channel over an existing client. The caller
// keeps ownership of the client.
func New(ctx context.Context, client redis.UniversalClient, b *bus.Bus, logger *slog.Logger) (*Bridge, error) {
	return attach(ctx, client, b, logger)
}

func attach(ctx context.Context, client redis.UniversalClient, b *bus.Bus, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pubsub := client.Subscribe(ctx, Channel)
	// Wait for the subscription to be live before any local emit can race it.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", Channel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	br := &Bridge{
		client: client,
		b:      b,
		logger: logger,
		origin: b.ID(),
		pubsub: pubsub,
		cancel: cancel,
	}

	b.SetForwarder(br.forward)

	br.wg.Add(1)
	go br.receive(runCtx)

	logger.Info("bridge attached", "channel", Channel, "origin", br.origin)
	return br, nil
}

// forward publishes a locally emitted event onto the broadcast channel. The
// bus calls it after local fan-out has completed. Publish failures are logged
// and dropped; cross-host delivery is best effort.
func (br *Bridge) forward(evt bus.Event) {
	data, err := json.Marshal(envelope{Origin: br.origin, Event: evt})
	if err != nil {
		br.logger.Error("failed to marshal outbound event", "error", err, "event_type", evt.Type)
		return
	}

	if err := br.client.Publish(context.Background(), Channel, data).Err(); err != nil {
		br.logger.Error("failed to publish event", "error", err, "event_type", evt.Type)
	}
}

// receive drains the channel, dropping our own echoes and malformed frames,
// and injects everything else into the local bus.
func (br *Bridge) receive(ctx context.Context) {
	defer br.wg.Done()

	ch := br.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				br.logger.Warn("dropping malformed frame", "error", err)
				continue
			}
			if env.Origin == br.origin {
				// Our own broadcast coming back around.
				continue
			}

			if err := br.b.InjectRemote(env.Event); err != nil {
				br.logger.Warn("failed to inject remote event",
					"error", err,
					"event_type", env.Event.Type,
					"remote_origin", env.Origin,
				)
			}
		}
	}
}

// Close detaches the bus from the channel and releases the subscription.
func (br *Bridge) Close() error {
	br.b.SetForwarder(nil)
	br.cancel()
	err := br.pubsub.Close()
	br.wg.Wait()
	if br.ownClient {
		if cerr := br.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
