package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	changeChannel  = "krampus:changes"
	publishTimeout = 5 * time.Second
)

const (
	EntityProposal = "proposal"
	EntityRule     = "rule"

	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionResolved = "resolved"
	ActionDeleted  = "deleted"
)

// Change describes a committed mutation of a proposal or rule. Presentation
// layers subscribe to these instead of re-fetching after every write.
type Change struct {
	Entity     string `json:"entity"`
	Action     string `json:"action"`
	Identifier string `json:"identifier"`
	ID         uint64 `json:"id"`
	Origin     string `json:"origin"`
}

// Broadcaster publishes change events over redis pub/sub. A nil Broadcaster
// is valid and drops everything, so callers need no redis-configured check.
type Broadcaster struct {
	client *redis.Client
	origin string
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	if client == nil {
		return nil
	}
	return &Broadcaster{client: client, origin: originID()}
}

func originID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func (b *Broadcaster) Publish(ctx context.Context, change Change) {
	if b == nil {
		return
	}
	change.Origin = b.origin

	payload, err := json.Marshal(change)
	if err != nil {
		log.Error("Change broadcast: failed to serialize event", "error", err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := b.client.Publish(opCtx, changeChannel, payload).Err(); err != nil {
		log.Error("Change broadcast: publish failed", "error", err)
	}
}

// Listen consumes change events published by other instances and hands them
// to fn. Events originating from this broadcaster are skipped. The loop
// reconnects with backoff until ctx is done.
func (b *Broadcaster) Listen(ctx context.Context, fn func(Change)) {
	if b == nil || fn == nil {
		return
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		sub := b.client.Subscribe(ctx, changeChannel)
		ch := sub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.Warn("Change broadcast: malformed event", "error", err)
					continue
				}
				if change.Origin == b.origin {
					continue
				}
				fn(change)
			}
		}

		_ = sub.Close()
		log.Warn("Change broadcast: subscription lost, reconnecting", "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
