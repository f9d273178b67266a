package record

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

const (
	// Hash per member: fields verified ("0"/"1") and join_time (epoch seconds).
	recordKeyPrefix = "gatekeeper:verification:"

	fieldVerified = "verified"
	fieldJoinTime = "join_time"
)

// RedisStore keeps records in Redis hashes for deployments that already run
// Redis and want no local state.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key models.Key) string {
	return recordKeyPrefix + strconv.FormatInt(key.ChatID, 10) + ":" + strconv.FormatInt(key.UserID, 10)
}

func (s *RedisStore) Get(ctx context.Context, key models.Key) (*models.VerificationRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return nil, unavailable("get record", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	joinTime, err := strconv.ParseInt(fields[fieldJoinTime], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode join_time of %s: %w", key, err)
	}
	return &models.VerificationRecord{
		ChatID:   key.ChatID,
		UserID:   key.UserID,
		Verified: fields[fieldVerified] == "1",
		JoinTime: joinTimeFromEpoch(joinTime),
	}, nil
}

func (s *RedisStore) Upsert(ctx context.Context, record models.VerificationRecord) error {
	err := s.client.HSet(ctx, redisKey(record.Key()),
		fieldVerified, boolToInt(record.Verified),
		fieldJoinTime, record.JoinTime.Unix(),
	).Err()
	if err != nil {
		return unavailable("upsert record", err)
	}
	return nil
}

// SetVerified keeps an existing join_time and sets it to at otherwise.
func (s *RedisStore) SetVerified(ctx context.Context, key models.Key, at time.Time) error {
	k := redisKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, k, fieldJoinTime, at.Unix())
		pipe.HSet(ctx, k, fieldVerified, 1)
		return nil
	})
	if err != nil {
		return unavailable("set verified", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key models.Key) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return unavailable("delete record", err)
	}
	return nil
}

// Counts scans every record hash. It is meant for the admin API, not for
// hot paths.
func (s *RedisStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if !strings.HasPrefix(iter.Val(), recordKeyPrefix) {
			continue
		}
		c.Total++
		verified, err := s.client.HGet(ctx, iter.Val(), fieldVerified).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return Counts{}, unavailable("count records", err)
		}
		if verified == "1" {
			c.Verified++
		}
	}
	if err := iter.Err(); err != nil {
		return Counts{}, unavailable("count records", err)
	}
	return c, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
