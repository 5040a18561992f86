package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedMessage represents a chat message entry cached for fast room snapshots
type CachedMessage struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	Message       string    `json:"message"`
	MessageType   string    `json:"messageType"`
	VoiceDuration *int      `json:"voiceDuration,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RedisClient wraps the Redis client for recent-chat caching
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

func messagesKey(roomID string) string {
	return "room:" + roomID + ":messages"
}

// AddMessage appends a message to the room's recent-chat list
func (r *RedisClient) AddMessage(ctx context.Context, roomID string, m *CachedMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	key := messagesKey(roomID)
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		log.Printf("[Redis] Failed to cache chat message: %v", err)
		return err
	}

	// Cap the list and refresh TTL (24 hours)
	r.client.LTrim(ctx, key, -500, -1)
	r.client.Expire(ctx, key, 24*time.Hour)

	return nil
}

// GetRecentMessages retrieves the last N messages for a room
func (r *RedisClient) GetRecentMessages(ctx context.Context, roomID string, count int64) ([]CachedMessage, error) {
	results, err := r.client.LRange(ctx, messagesKey(roomID), -count, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]CachedMessage, 0, len(results))
	for _, data := range results {
		var m CachedMessage
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}

	return messages, nil
}

// MessageCount returns the number of cached messages in a room
func (r *RedisClient) MessageCount(ctx context.Context, roomID string) (int64, error) {
	return r.client.LLen(ctx, messagesKey(roomID)).Result()
}

// DeleteRoom removes all cached messages for a room
// Use this when a party ends
func (r *RedisClient) DeleteRoom(ctx context.Context, roomID string) error {
	return r.client.Del(ctx, messagesKey(roomID)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
