package liveview

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Loader performs a full refetch of the view's backing table. It runs on
// every successful (re)attach, so anything missed while disconnected is
// recovered.
type Loader func(ctx context.Context) ([]Record, error)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Subscriber feeds a Store from a Redis pub/sub channel and resubscribes with
// exponential backoff when the feed drops. Silent desynchronization is the
// failure mode this guards against: a view is only trusted after a refetch
// has run on the current attachment.
type Subscriber struct {
	rdb     *redis.Client
	channel string
	store   *Store
	load    Loader
	log     *zap.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewSubscriber(rdb *redis.Client, channel string, store *Store, load Loader, log *zap.Logger) *Subscriber {
	return &Subscriber{
		rdb:            rdb,
		channel:        channel,
		store:          store,
		load:           load,
		log:            log,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// Run blocks until ctx is cancelled, keeping the store attached to the feed.
func (s *Subscriber) Run(ctx context.Context) {
	backoff := s.initialBackoff
	for {
		err := s.attach(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("Live view feed dropped, resubscribing",
			zap.String("channel", s.channel),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Subscriber) attach(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Confirm the subscription before refetching: events published after
	// this point are delivered, so refetch-then-fold cannot lose updates.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	if s.load != nil {
		recs, err := s.load(ctx)
		if err != nil {
			return err
		}
		s.store.Replace(recs)
		s.log.Debug("Live view refetched",
			zap.String("channel", s.channel),
			zap.Int("records", len(recs)),
		)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Channel():
			if !ok {
				return errors.New("subscription channel closed")
			}
			s.fold([]byte(msg.Payload))
		}
	}
}

// fold applies one feed event to the store. Event shape:
// {"op": "insert"|"update", "record": {...}}.
func (s *Subscriber) fold(payload []byte) {
	var event struct {
		Op     string `json:"op"`
		Record Record `json:"record"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		s.log.Warn("Failed to parse feed event", zap.String("channel", s.channel), zap.Error(err))
		return
	}
	if event.Record == nil {
		return
	}

	switch event.Op {
	case "insert":
		s.store.ApplyInsert(event.Record)
	case "update":
		s.store.ApplyUpdate(event.Record)
	default:
		s.log.Warn("Unknown feed op", zap.String("op", event.Op))
	}
}
