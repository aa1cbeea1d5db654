// Package session holds the traveler session that the trip pipeline runs under.
// Sessions are issued by the login service; this package only loads and clears them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	Token    string    `json:"token"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

type Store interface {
	Load(ctx context.Context, token string) (*Session, error)
	Clear(ctx context.Context, token string) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load returns ErrNotFound for unknown or expired tokens.
func (s *RedisStore) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.Token = token
	if sess.UserID == "" {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Save is used by tooling and tests; the login service writes the same format.
func (s *RedisStore) Save(ctx context.Context, sess Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(sess.Token), payload, ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, token string) error {
	return s.client.Del(ctx, key(token)).Err()
}

type ctxKey struct{}

func ToContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by the auth middleware, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}

func key(token string) string {
	return "session:" + token
}

var _ Store = (*RedisStore)(nil)
