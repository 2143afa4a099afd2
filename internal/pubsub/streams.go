package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamEvent is an event stored in Redis Streams for replay
type StreamEvent struct {
	Channel   string
	Sequence  int64
	Event     map[string]interface{}
	Timestamp time.Time
}

// Streams keeps a per-channel, sequence-numbered event history so a client
// that reconnects can resume from its last acknowledged sequence instead of
// refetching everything.
type Streams struct {
	rdb *redis.Client
	log *zap.Logger
	ctx context.Context
}

func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	return &Streams{
		rdb: rdb,
		log: log,
		ctx: context.Background(),
	}
}

// PublishEvent appends an event to a channel's stream and returns its
// sequence number.
func (s *Streams) PublishEvent(channel string, event map[string]interface{}) (int64, error) {
	seq, err := s.rdb.Incr(s.ctx, "seq:"+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	enriched := make(map[string]interface{}, len(event)+3)
	for k, v := range event {
		enriched[k] = v
	}
	enriched["seq"] = seq
	enriched["channel"] = channel
	enriched["timestamp"] = time.Now().Format(time.RFC3339)

	data, err := json.Marshal(enriched)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := s.rdb.XAdd(s.ctx, &redis.XAddArgs{
		Stream: "stream:" + channel,
		ID:     "*",
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add to stream: %w", err)
	}

	s.log.Debug("Published event to stream",
		zap.String("channel", channel),
		zap.Int64("sequence", seq),
		zap.String("stream_id", id),
	)
	return seq, nil
}

// GetLastSequence returns the last acknowledged sequence for a channel and
// connection, zero if the connection never acknowledged anything.
func (s *Streams) GetLastSequence(channel, connectionID string) (int64, error) {
	val, err := s.rdb.Get(s.ctx, ackKey(channel, connectionID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last sequence: %w", err)
	}
	seq, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sequence: %w", err)
	}
	return seq, nil
}

// AcknowledgeSequence records how far a connection has consumed a channel.
func (s *Streams) AcknowledgeSequence(channel, connectionID string, sequence int64) error {
	if err := s.rdb.Set(s.ctx, ackKey(channel, connectionID), sequence, 0).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge sequence: %w", err)
	}
	return nil
}

func ackKey(channel, connectionID string) string {
	return fmt.Sprintf("ack:%s:%s", channel, connectionID)
}

// ReplayEvents returns up to limit events on a channel with a sequence
// greater than sinceSeq.
func (s *Streams) ReplayEvents(channel string, sinceSeq int64, limit int64) ([]StreamEvent, error) {
	startID := fmt.Sprintf("%d-%d", time.Now().Add(-24*time.Hour).UnixMilli(), sinceSeq)

	streams, err := s.rdb.XRead(s.ctx, &redis.XReadArgs{
		Streams: []string{"stream:" + channel, startID},
		Count:   limit,
	}).Result()
	if err == redis.Nil {
		return []StreamEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	var events []StreamEvent
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}

			var raw map[string]interface{}
			if err := json.Unmarshal([]byte(data), &raw); err != nil {
				s.log.Warn("Failed to unmarshal stream event", zap.Error(err))
				continue
			}

			seq, _ := raw["seq"].(float64)
			if int64(seq) <= sinceSeq {
				continue
			}
			channelName, _ := raw["channel"].(string)

			timestamp := time.Now()
			if ts, _ := raw["timestamp"].(string); ts != "" {
				if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
					timestamp = parsed
				}
			}

			event := make(map[string]interface{})
			for k, v := range raw {
				if k != "seq" && k != "channel" && k != "timestamp" {
					event[k] = v
				}
			}

			events = append(events, StreamEvent{
				Channel:   channelName,
				Sequence:  int64(seq),
				Event:     event,
				Timestamp: timestamp,
			})
		}
	}
	return events, nil
}
