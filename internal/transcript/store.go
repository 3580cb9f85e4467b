// Package transcript appends role-tagged entries to a conversation log held in Redis.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrAlreadyDelivered is returned when a workflow already appended its entry.
var ErrAlreadyDelivered = errors.New("transcript entry already delivered")

// Roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one transcript line
type Entry struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store is a Redis-backed append-only transcript
type Store struct {
	client    redis.UniversalClient
	logger    *zap.Logger
	ttl       time.Duration
	markerTTL time.Duration
}

// NewStore creates a transcript store. ttl of zero keeps entries forever.
func NewStore(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	markerTTL := ttl
	if markerTTL == 0 {
		markerTTL = 30 * 24 * time.Hour
	}
	return &Store{client: client, logger: logger, ttl: ttl, markerTTL: markerTTL}
}

func listKey(conversationID string) string {
	return "transcript:" + conversationID
}

func markerKey(conversationID, deliveryKey string) string {
	return fmt.Sprintf("transcript:%s:delivered:%s", conversationID, deliveryKey)
}

// Append adds an entry to the conversation. A non-empty deliveryKey makes the
// append happen at most once per key; repeats return ErrAlreadyDelivered.
func (s *Store) Append(ctx context.Context, conversationID, deliveryKey string, entry Entry) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode transcript entry: %w", err)
	}

	if deliveryKey != "" {
		marker := markerKey(conversationID, deliveryKey)
		ok, err := s.client.SetNX(ctx, marker, entry.ID, s.markerTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to set delivery marker: %w", err)
		}
		if !ok {
			return ErrAlreadyDelivered
		}
		if err := s.push(ctx, conversationID, payload); err != nil {
			if delErr := s.client.Del(ctx, marker).Err(); delErr != nil {
				s.logger.Warn("Failed to release delivery marker", zap.String("marker", marker), zap.Error(delErr))
			}
			return err
		}
		return nil
	}
	return s.push(ctx, conversationID, payload)
}

func (s *Store) push(ctx context.Context, conversationID string, payload []byte) error {
	key := listKey(conversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append transcript entry: %w", err)
	}
	s.logger.Debug("Transcript entry appended", zap.String("conversation_id", conversationID))
	return nil
}

// List returns the conversation entries in append order
func (s *Store) List(ctx context.Context, conversationID string) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, listKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.logger.Warn("Skipping malformed transcript entry", zap.String("conversation_id", conversationID), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Ping checks Redis connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
