package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/redis"
)

const keyPrefix = "session:"

// Redis stores each session as JSON whose TTL is the idle timeout, so Redis
// evicts idle sessions itself. Concurrent updates to one chat are last
// writer wins.
type Redis struct {
	client      *pkgredis.Client
	idleTimeout time.Duration
	maxTurns    int
	now         func() time.Time
}

func NewRedis(client *pkgredis.Client, idleTimeout time.Duration, maxTurns int) *Redis {
	return &Redis{client: client, idleTimeout: idleTimeout, maxTurns: maxTurns, now: time.Now}
}

func (r *Redis) Touch(ctx context.Context, chatID int64) (Session, error) {
	s, ok, err := r.Get(ctx, chatID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		s = Session{ChatID: chatID}
	}
	s.touch(r.now())
	return s, r.save(ctx, s)
}

func (r *Redis) AddTurn(ctx context.Context, chatID int64, t Turn) error {
	s, ok, err := r.Get(ctx, chatID)
	if err != nil || !ok {
		return err
	}
	s.addTurn(t, r.maxTurns)
	return r.save(ctx, s)
}

func (r *Redis) Get(ctx context.Context, chatID int64) (Session, bool, error) {
	data, err := r.client.Get(ctx, key(chatID))
	if pkgredis.IsNilError(err) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("loading session %d: %w", chatID, err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Session{}, false, fmt.Errorf("decoding session %d: %w", chatID, err)
	}
	return s, true, nil
}

func (r *Redis) Delete(ctx context.Context, chatID int64) error {
	return r.client.Del(ctx, key(chatID))
}

func (r *Redis) save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %d: %w", s.ChatID, err)
	}
	if err := r.client.Set(ctx, key(s.ChatID), data, r.idleTimeout); err != nil {
		return fmt.Errorf("saving session %d: %w", s.ChatID, err)
	}
	return nil
}

func key(chatID int64) string {
	return keyPrefix + strconv.FormatInt(chatID, 10)
}
