package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
)

const (
	// 只刷新自己持有的锁
	refreshScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	// 只释放自己持有的锁
	unlockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

type RedLock struct {
	mu          sync.Mutex
	clients     []*redis.Client
	addresses   []string
	ctx         context.Context
	locks       map[string]string // key是锁名，value是token值
	retries     int
	retryDelay  time.Duration
	clusterSize int
	logger      *zap.Logger
}

// NewRedLock 根据配置连接所有锁节点
func NewRedLock(cfg config.RedisConfig, logger *zap.Logger) (*RedLock, error) {
	ctx := context.Background()

	var clients []*redis.Client
	for _, addr := range cfg.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			for _, c := range clients {
				c.Close()
			}
			client.Close()
			return nil, fmt.Errorf("Redis锁节点 %s 连接测试失败: %w", addr, err)
		}

		clients = append(clients, client)
	}

	return NewRedLockWithClients(clients, cfg.LockAddresses, cfg.LockRetryCount, logger), nil
}

// NewRedLockWithClients 使用已有的客户端创建锁
func NewRedLockWithClients(clients []*redis.Client, addresses []string, retries int, logger *zap.Logger) *RedLock {
	if retries <= 0 {
		retries = 1
	}
	return &RedLock{
		clients:     clients,
		addresses:   addresses,
		ctx:         context.Background(),
		locks:       make(map[string]string),
		retries:     retries,
		retryDelay:  100 * time.Millisecond,
		clusterSize: len(clients),
		logger:      logger.Named("redlock"),
	}
}

func (r *RedLock) quorum() int {
	return r.clusterSize/2 + 1
}

func (r *RedLock) address(i int) string {
	if i < len(r.addresses) {
		return r.addresses[i]
	}
	return fmt.Sprintf("#%d", i)
}

// AcquireLock Redlock算法: 在多数节点上获取锁
func (r *RedLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.locks[lockName]; held {
		return false, nil
	}

	token := uuid.NewString()
	for attempt := 0; attempt < r.retries; attempt++ {
		success := 0
		start := time.Now()

		for i, client := range r.clients {
			ok, err := client.SetNX(r.ctx, lockName, token, timeout).Result()
			if err != nil {
				r.logger.Warn("节点获取锁失败", zap.String("node", r.address(i)), zap.String("lock", lockName), zap.Error(err))
				continue
			}
			if ok {
				success++
			}
		}

		validityTime := timeout - time.Since(start)
		if success >= r.quorum() && validityTime > 0 {
			r.locks[lockName] = token
			return true, nil
		}

		// 获取失败，释放所有节点上的锁
		r.unlockAll(lockName, token)

		if attempt < r.retries-1 {
			time.Sleep(r.retryDelay)
		}
	}

	return false, nil
}

// RefreshLock 刷新锁的过期时间
func (r *RedLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.locks[lockName]
	if !exists {
		return false, fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	success := 0
	for i, client := range r.clients {
		result, err := client.Eval(r.ctx, refreshScript, []string{lockName}, token, int(timeout/time.Millisecond)).Int64()
		if err != nil {
			r.logger.Warn("节点刷新锁失败", zap.String("node", r.address(i)), zap.String("lock", lockName), zap.Error(err))
			continue
		}
		if result == 1 {
			success++
		}
	}

	if success >= r.quorum() {
		return true, nil
	}

	delete(r.locks, lockName)
	return false, nil
}

// ReleaseLock 释放分布式锁
func (r *RedLock) ReleaseLock(lockName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.locks[lockName]
	if !exists {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	r.unlockAll(lockName, token)
	delete(r.locks, lockName)
	return nil
}

// unlockAll 在所有节点上释放锁
func (r *RedLock) unlockAll(lockName string, token string) {
	for i, client := range r.clients {
		if err := client.Eval(r.ctx, unlockScript, []string{lockName}, token).Err(); err != nil {
			r.logger.Warn("节点释放锁失败", zap.String("node", r.address(i)), zap.String("lock", lockName), zap.Error(err))
		}
	}
}

// ReleaseAllLocks 释放所有持有的锁
func (r *RedLock) ReleaseAllLocks() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, token := range r.locks {
		r.unlockAll(name, token)
	}
	r.locks = make(map[string]string)
}

// Close 关闭分布式锁客户端
func (r *RedLock) Close() error {
	r.ReleaseAllLocks()

	for i, client := range r.clients {
		if err := client.Close(); err != nil {
			r.logger.Warn("关闭Redis客户端失败", zap.String("node", r.address(i)), zap.Error(err))
		}
	}
	return nil
}
