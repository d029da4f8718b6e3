package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

const (
	// Redis键前缀
	PollKey        = "pollie:poll:"
	PollVersionKey = "pollie:pollver:"
	DraftKey       = "pollie:draft:"

	// 读取草稿并续期，草稿不存在时返回nil
	loadDraftScript = `
		local data = redis.call('GET', KEYS[1])
		if data then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return data
	`

	// 版本号与读库前一致时才回填缓存，返回1表示已写入
	setPollIfVersionScript = `
		local current = redis.call('GET', KEYS[2])
		if (current or '0') ~= ARGV[1] then
			return 0
		end
		redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
		return 1
	`
)

var scripts = map[string]string{
	"loadDraft":        loadDraftScript,
	"setPollIfVersion": setPollIfVersionScript,
}

type RedisRepository struct {
	client       *redis.Client
	cacheTTL     time.Duration
	draftTTL     time.Duration
	mu           sync.Mutex
	scriptHashes map[string]string // 存储脚本SHA1哈希值
	logger       *zap.Logger
}

func NewRedisRepository(cfg config.RedisConfig, logger *zap.Logger) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	return NewRedisRepositoryWithClient(client, cfg.CacheTTL, cfg.DraftTTL, logger)
}

// NewRedisRepositoryWithClient 使用已有客户端，并预加载Lua脚本
func NewRedisRepositoryWithClient(client *redis.Client, cacheTTL, draftTTL time.Duration, logger *zap.Logger) (*RedisRepository, error) {
	repo := &RedisRepository{
		client:       client,
		cacheTTL:     cacheTTL,
		draftTTL:     draftTTL,
		scriptHashes: make(map[string]string),
		logger:       logger.Named("redis"),
	}

	if err := repo.preloadScripts(context.Background()); err != nil {
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}
	return repo, nil
}

func (r *RedisRepository) preloadScripts(ctx context.Context) error {
	for name, script := range scripts {
		sha1, err := r.client.ScriptLoad(ctx, script).Result()
		if err != nil {
			return fmt.Errorf("加载脚本 %s 失败: %w", name, err)
		}

		r.mu.Lock()
		r.scriptHashes[name] = sha1
		r.mu.Unlock()
	}
	return nil
}

// GetPoll 从缓存获取投票记录，第二个返回值表示是否命中
func (r *RedisRepository) GetPoll(ctx context.Context, id string) (*model.Poll, bool, error) {
	data, err := r.client.Get(ctx, PollKey+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取投票缓存失败: %w", err)
	}

	var poll model.Poll
	if err := json.Unmarshal(data, &poll); err != nil {
		return nil, false, fmt.Errorf("解析投票缓存失败: %w", err)
	}
	return &poll, true, nil
}

// PollVersion 返回投票缓存的版本号，从未写过时为0
func (r *RedisRepository) PollVersion(ctx context.Context, id string) (int64, error) {
	version, err := r.client.Get(ctx, PollVersionKey+id).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("获取投票缓存版本失败: %w", err)
	}
	return version, nil
}

// SetPollIfVersion 版本号仍为version时写入缓存，返回是否写入
func (r *RedisRepository) SetPollIfVersion(ctx context.Context, poll *model.Poll, version int64) (bool, error) {
	data, err := json.Marshal(poll)
	if err != nil {
		return false, fmt.Errorf("序列化投票失败: %w", err)
	}

	keys := []string{PollKey + poll.ID, PollVersionKey + poll.ID}
	result, err := r.evalScript(ctx, "setPollIfVersion", setPollIfVersionScript, keys,
		version, string(data), r.cacheTTL.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("设置投票缓存失败: %w", err)
	}

	stored, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("LUA脚本返回类型错误")
	}
	return stored == 1, nil
}

// InvalidatePoll 递增版本号并删除缓存，之前读库的回填都会失效
func (r *RedisRepository) InvalidatePoll(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, PollVersionKey+id)
		pipe.PExpire(ctx, PollVersionKey+id, r.cacheTTL)
		pipe.Del(ctx, PollKey+id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("删除投票缓存失败: %w", err)
	}
	return nil
}

// SaveDraft 保存用户的创建草稿并重置有效期
func (r *RedisRepository) SaveDraft(ctx context.Context, draft *model.PollDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("序列化草稿失败: %w", err)
	}

	if err := r.client.Set(ctx, DraftKey+draft.UserID, data, r.draftTTL).Err(); err != nil {
		return fmt.Errorf("保存草稿失败: %w", err)
	}
	return nil
}

// LoadDraft 读取草稿并续期，不存在或已过期时返回nil, nil
func (r *RedisRepository) LoadDraft(ctx context.Context, userID string) (*model.PollDraft, error) {
	key := DraftKey + userID
	result, err := r.evalScript(ctx, "loadDraft", loadDraftScript, []string{key}, r.draftTTL.Milliseconds())
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("读取草稿失败: %w", err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("LUA脚本返回类型错误")
	}

	var draft model.PollDraft
	if err := json.Unmarshal([]byte(data), &draft); err != nil {
		return nil, fmt.Errorf("解析草稿失败: %w", err)
	}
	return &draft, nil
}

// DeleteDraft 删除草稿
func (r *RedisRepository) DeleteDraft(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, DraftKey+userID).Err(); err != nil {
		return fmt.Errorf("删除草稿失败: %w", err)
	}
	return nil
}

// evalScript 使用EVALSHA执行预加载脚本，脚本缓存丢失时重新加载
func (r *RedisRepository) evalScript(ctx context.Context, name, script string, keys []string, args ...interface{}) (interface{}, error) {
	r.mu.Lock()
	sha1, ok := r.scriptHashes[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("脚本 %s 未预加载", name)
	}

	result, err := r.client.EvalSha(ctx, sha1, keys, args...).Result()
	if err == nil || !strings.HasPrefix(err.Error(), "NOSCRIPT") {
		return result, err
	}

	r.logger.Info("Redis脚本缓存丢失，重新加载", zap.String("script", name))
	sha1, err = r.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return nil, fmt.Errorf("重新加载脚本失败: %w", err)
	}

	r.mu.Lock()
	r.scriptHashes[name] = sha1
	r.mu.Unlock()

	return r.client.EvalSha(ctx, sha1, keys, args...).Result()
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
