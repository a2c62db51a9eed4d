package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	emailKeyPrefix = "otp:email:"
	idKeyPrefix    = "otp:id:"

	// Attempts live in their own counter so INCR stays atomic.
	attemptsKeyPrefix = "otp:attempts:"
)

// RedisStore keeps OTPs as JSON values whose key TTL matches the OTP expiry,
// so Redis deletes them itself.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

type redisRecord struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Purpose   models.OTPPurpose `json:"purpose"`
	CodeHash  string            `json:"code_hash"`
	Attempts  int               `json:"attempts"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Replace(ctx context.Context, otp *models.OTP) error {
	ttl := otp.ExpiresAt.Sub(s.now())

	prev, err := s.FindByEmail(ctx, otp.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	body, err := json.Marshal(redisRecord{
		ID:        otp.ID,
		Email:     otp.Email,
		Purpose:   otp.Purpose,
		CodeHash:  otp.CodeHash,
		ExpiresAt: otp.ExpiresAt,
		CreatedAt: otp.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode otp: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil {
			pipe.Del(ctx, idKeyPrefix+prev.ID, attemptsKeyPrefix+prev.ID)
		}
		if ttl <= 0 {
			pipe.Del(ctx, emailKeyPrefix+otp.Email)
			return nil
		}
		pipe.Set(ctx, emailKeyPrefix+otp.Email, body, ttl)
		pipe.Set(ctx, idKeyPrefix+otp.ID, otp.Email, ttl)
		return nil
	})
	return err
}

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*models.OTP, error) {
	raw, err := s.rdb.Get(ctx, emailKeyPrefix+email).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode otp: %w", err)
	}

	attempts, err := s.rdb.Get(ctx, attemptsKeyPrefix+rec.ID).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	rec.Attempts = attempts

	return &models.OTP{
		ID:        rec.ID,
		Email:     rec.Email,
		Purpose:   rec.Purpose,
		CodeHash:  rec.CodeHash,
		Attempts:  rec.Attempts,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	email, err := s.rdb.Get(ctx, idKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	current, err := s.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, idKeyPrefix+id, attemptsKeyPrefix+id)
		if current != nil && current.ID == id {
			pipe.Del(ctx, emailKeyPrefix+email)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if current == nil || current.ID != id {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) AddAttempt(ctx context.Context, otp *models.OTP) (int, error) {
	exists, err := s.rdb.Exists(ctx, idKeyPrefix+otp.ID).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	key := attemptsKeyPrefix + otp.ID
	var incr *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, otp.ExpiresAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
