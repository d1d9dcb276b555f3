package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/redis/go-redis/v9"
)

const redisSessionPrefix = "dashboard:session:"

// redisSession is the stored JSON form. SessionData hides its id from JSON.
type redisSession struct {
	utils.SessionData
	ID string `json:"session_id"`
}

// RedisSessionStore keeps sessions in Redis with a TTL matching ExpiresAt, so
// expired sessions disappear without pruning.
type RedisSessionStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

func redisSessionKey(id string) string {
	return redisSessionPrefix + id
}

func (s *RedisSessionStore) Save(ctx context.Context, sess utils.SessionData) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("save session: already expired")
	}
	raw, err := json.Marshal(redisSession{SessionData: sess, ID: sess.SessionID})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisSessionKey(sess.SessionID), raw, ttl).Err(); err != nil {
		return persistenceError("save session", err)
	}
	return nil
}

func (s *RedisSessionStore) FindSessionByID(ctx context.Context, id string) (utils.SessionData, error) {
	raw, err := s.client.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return utils.SessionData{}, ErrSessionNotFound
	}
	if err != nil {
		return utils.SessionData{}, persistenceError("find session", err)
	}

	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return utils.SessionData{}, fmt.Errorf("decode session: %w", err)
	}
	stored.SessionData.SessionID = stored.ID
	return stored.SessionData, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisSessionKey(id)).Err(); err != nil {
		return persistenceError("delete session", err)
	}
	return nil
}
