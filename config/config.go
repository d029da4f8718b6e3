package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	ETCD      ETCDConfig      `mapstructure:"etcd"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	GraphQL   GraphQLConfig   `mapstructure:"graphql"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DiscordConfig struct {
	Token string `mapstructure:"token"`
	// 为空时注册全局命令
	GuildID string `mapstructure:"guild_id"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 数据存储Redis（投票缓存、草稿）
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	DraftTTL    time.Duration `mapstructure:"draft_ttl"`

	// Redlock使用的Redis节点
	LockAddresses  []string `mapstructure:"lock_addresses"`
	LockRetryCount int      `mapstructure:"lock_retry_count"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ETCDConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LifecycleConfig struct {
	// 关闭锁实现: redis | etcd | local
	CloseLock        string        `mapstructure:"close_lock"`
	CloseLockTimeout time.Duration `mapstructure:"close_lock_timeout"`
	RestoreLookback  time.Duration `mapstructure:"restore_lookback"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	DanglingGrace    time.Duration `mapstructure:"dangling_grace"`
	StaleFireSlack   time.Duration `mapstructure:"stale_fire_slack"`
	// 关闭锁被占用时重新触发关闭的间隔
	CloseLockRetry   time.Duration `mapstructure:"close_lock_retry"`
	// 生命周期事件发送超时，与关闭流程的上下文分离
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("redis.timeout", 3*time.Second)
	v.SetDefault("redis.cache_ttl", time.Hour)
	v.SetDefault("redis.draft_ttl", 15*time.Minute)
	v.SetDefault("redis.lock_retry_count", 3)
	v.SetDefault("kafka.topic", "pollie.lifecycle")
	v.SetDefault("kafka.group_id", "pollie-results")
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.request_timeout", 3*time.Second)
	v.SetDefault("lifecycle.close_lock", "redis")
	v.SetDefault("lifecycle.close_lock_timeout", 30*time.Second)
	v.SetDefault("lifecycle.restore_lookback", time.Hour)
	v.SetDefault("lifecycle.sweep_interval", 5*time.Minute)
	v.SetDefault("lifecycle.dangling_grace", 10*time.Minute)
	v.SetDefault("lifecycle.stale_fire_slack", 2*time.Second)
	v.SetDefault("lifecycle.close_lock_retry", 5*time.Second)
	v.SetDefault("lifecycle.publish_timeout", 2*time.Second)
	v.SetDefault("graphql.path", "/graphql")
	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置文件，环境变量（以及.env文件）优先
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("未找到.env文件，使用环境变量")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("缺少discord.token（或环境变量DISCORD_TOKEN）")
	}

	AppConfig = cfg
	return &AppConfig, nil
}
