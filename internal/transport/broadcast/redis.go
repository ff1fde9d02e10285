// Package broadcast mirrors a level's EVENT and DIFF stream onto redis
// pub/sub so spectators and tooling can follow a level without a session.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/protocol"
)

const (
	queueSize      = 256
	publishTimeout = 3 * time.Second
)

// publisher is the part of a redis client the mirror uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type message struct {
	channel string
	payload []byte
}

// Redis publishes broadcasts from a dedicated goroutine. Broadcast never
// blocks; when redis falls behind the newest messages are dropped.
type Redis struct {
	pub     publisher
	closer  func() error
	prefix  string
	levelID string
	log     *slog.Logger

	ch      chan message
	dropped atomic.Uint64

	once sync.Once
	done chan struct{}
}

// Connect dials url, pings it and starts the publisher.
func Connect(ctx context.Context, url, prefix, levelID string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	rdb := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	r := newRedis(rdb, prefix, levelID, logger)
	r.closer = rdb.Close
	return r, nil
}

func newRedis(pub publisher, prefix, levelID string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "annihilation"
	}
	r := &Redis{
		pub:     pub,
		prefix:  prefix,
		levelID: levelID,
		log:     logger.With("component", "redis", "level_id", levelID),
		ch:      make(chan message, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// EventsChannel and DiffsChannel name the pub/sub channels of the level.
func (r *Redis) EventsChannel() string { return r.prefix + ":" + r.levelID + ":events" }
func (r *Redis) DiffsChannel() string  { return r.prefix + ":" + r.levelID + ":diffs" }

// Dropped counts messages lost to a full queue.
func (r *Redis) Dropped() uint64 { return r.dropped.Load() }

func (r *Redis) Broadcast(tick uint64, events []protocol.Event, change snapshot.Change) {
	if len(events) > 0 {
		r.enqueue(r.EventsChannel(), protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Events:          events,
		})
	}
	if !change.Empty() {
		r.enqueue(r.DiffsChannel(), protocol.NewDiff(tick, change))
	}
}

func (r *Redis) enqueue(channel string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.log.Warn("encode broadcast", "channel", channel, "err", err)
		return
	}
	select {
	case r.ch <- message{channel: channel, payload: b}:
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			r.log.Warn("redis queue full, dropping", "dropped", n)
		}
	}
}

func (r *Redis) run() {
	defer close(r.done)
	for m := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := r.pub.Publish(ctx, m.channel, m.payload).Err(); err != nil {
			r.log.Warn("publish", "channel", m.channel, "err", err)
		}
		cancel()
	}
}

// Close drains queued messages and closes the client. Broadcast must not be
// called afterwards.
func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		close(r.ch)
		<-r.done
		if r.closer != nil {
			err = r.closer()
		}
	})
	return err
}
