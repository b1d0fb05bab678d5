package support

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	InstanceHeartbeatKeyPrefix = "krampus:instance:"
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultHeartbeatTTL        = 30 * time.Second
)

var instanceID = generateInstanceID()

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}

// StartInstanceHeartbeat keeps a TTL key alive so peers sharing the redis
// instance can enumerate running servers. Blocks until ctx is cancelled.
func StartInstanceHeartbeat(ctx context.Context, client *redis.Client, interval, ttl time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	heartbeatKey := InstanceHeartbeatKeyPrefix + instanceID

	sendHeartbeat := func() {
		if err := client.SetEx(ctx, heartbeatKey, "alive", ttl).Err(); err != nil {
			log.Error("Failed to update instance heartbeat", "key", heartbeatKey, "error", err)
		}
	}

	sendHeartbeat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			client.Del(context.Background(), heartbeatKey)
			return
		case <-ticker.C:
			sendHeartbeat()
		}
	}
}

// LaunchInstanceHeartbeat starts the heartbeat in the background and returns
// a cancel func.
func LaunchInstanceHeartbeat(ctx context.Context, client *redis.Client) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go StartInstanceHeartbeat(ctx, client, DefaultHeartbeatInterval, DefaultHeartbeatTTL)
	return cancel
}

// ListInstances returns the instance ids with a live heartbeat.
func ListInstances(ctx context.Context, client *redis.Client) ([]string, error) {
	keys, err := client.Keys(ctx, InstanceHeartbeatKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	instances := make([]string, 0, len(keys))
	for _, key := range keys {
		instances = append(instances, key[len(InstanceHeartbeatKeyPrefix):])
	}
	return instances, nil
}
