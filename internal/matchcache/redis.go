package matchcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"geoenrich/internal/logger"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "geoenrich:match:"

// redisTimeout：单次缓存读写上限，超时按未命中处理
const redisTimeout = 200 * time.Millisecond

// OpenRedis：使用地址与密码打开 Redis 客户端；地址为空返回 nil
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	logger.L().Debug("redis_open", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// Client：缓存层用到的最小命令集，*redis.Client 满足该接口
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis：跨进程共享的缓存层，值为 JSON 编码的要素 ID 列表（未命中保存为 []）
type Redis struct {
	rc  Client
	ttl time.Duration
}

func NewRedis(rc Client, ttl time.Duration) *Redis { return &Redis{rc: rc, ttl: ttl} }

// RedisKey：长键压缩为定长摘要
func RedisKey(k string) string {
	return keyPrefix + strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func (r *Redis) Get(k string) ([]int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	s, err := r.rc.Get(ctx, RedisKey(k)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Debug("redis_get_error", "err", err)
		}
		return nil, false
	}
	var ids []int
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (r *Redis) Set(k string, ids []int) {
	if ids == nil {
		ids = []int{}
	}
	b, _ := json.Marshal(ids)
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := r.rc.Set(ctx, RedisKey(k), string(b), r.ttl).Err(); err != nil {
		logger.L().Debug("redis_set_error", "err", err)
	}
}
