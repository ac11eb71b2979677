package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/blackout/models"
)

const defaultExpiration = 24 * time.Hour

// RedisStore 把房间成员属性存到 Redis，每个成员一个 hash，
// 每个房间一个成员集合用于整体清理。
type RedisStore struct {
	client     *redis.Client
	prefix     string
	expiration time.Duration
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, prefix string, expiration time.Duration) *RedisStore {
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &RedisStore{client: client, prefix: prefix, expiration: expiration}
}

func (rs *RedisStore) membersKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:members", rs.prefix, roomID)
}

func (rs *RedisStore) memberKey(roomID string, member models.MemberID) string {
	return fmt.Sprintf("%s:room:%s:member:%s", rs.prefix, roomID, member)
}

func (rs *RedisStore) SetProperty(ctx context.Context, roomID string, member models.MemberID, key string, value bool) error {
	hashKey := rs.memberKey(roomID, member)
	setKey := rs.membersKey(roomID)

	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, key, value)
		pipe.Expire(ctx, hashKey, rs.expiration)
		pipe.SAdd(ctx, setKey, string(member))
		pipe.Expire(ctx, setKey, rs.expiration)
		return nil
	})
	if err != nil {
		return fmt.Errorf("保存属性失败 %s/%s/%s: %w", roomID, member, key, err)
	}
	return nil
}

func (rs *RedisStore) GetProperty(ctx context.Context, roomID string, member models.MemberID, key string) (bool, bool, error) {
	value, err := rs.client.HGet(ctx, rs.memberKey(roomID, member), key).Bool()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, err
	}
	return value, true, nil
}

func (rs *RedisStore) DeleteMember(ctx context.Context, roomID string, member models.MemberID) error {
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rs.memberKey(roomID, member))
		pipe.SRem(ctx, rs.membersKey(roomID), string(member))
		return nil
	})
	return err
}

func (rs *RedisStore) DeleteRoom(ctx context.Context, roomID string) error {
	setKey := rs.membersKey(roomID)
	members, err := rs.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, rs.memberKey(roomID, models.MemberID(m)))
	}
	keys = append(keys, setKey)
	return rs.client.Del(ctx, keys...).Err()
}

// Ping 检查 Redis 连接
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
