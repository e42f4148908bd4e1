package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// TickLock 提醒扫描的分布式租约，保证多实例部署时
// 同一轮扫描只有一个实例执行
type TickLock interface {
	Acquire(ctx context.Context) (bool, func(), error)
}

// RedisTickLock 基于 SETNX 的租约实现，释放时校验 token，
// 避免误删后续持有者的锁
type RedisTickLock struct {
	RDB *redis.Client
	Key string
	TTL time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisTickLock) Acquire(ctx context.Context) (bool, func(), error) {
	token := uuid.NewString()
	ok, err := l.RDB.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.RDB, []string{l.Key}, token).Err()
	}
	return true, release, nil
}

// NoopTickLock 单实例部署或测试环境使用
type NoopTickLock struct{}

func (NoopTickLock) Acquire(ctx context.Context) (bool, func(), error) {
	return true, func() {}, nil
}
