package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
	"github.com/c0du/discord-bot-pollie/internal/api"
	"github.com/c0du/discord-bot-pollie/internal/api/graph"
	"github.com/c0du/discord-bot-pollie/internal/bot"
	"github.com/c0du/discord-bot-pollie/internal/gateway"
	"github.com/c0du/discord-bot-pollie/internal/intake"
	intkafka "github.com/c0du/discord-bot-pollie/internal/kafka"
	"github.com/c0du/discord-bot-pollie/internal/lifecycle"
	"github.com/c0du/discord-bot-pollie/internal/lock"
	"github.com/c0du/discord-bot-pollie/internal/logging"
	"github.com/c0du/discord-bot-pollie/internal/poll"
	"github.com/c0du/discord-bot-pollie/internal/repository"
	"github.com/c0du/discord-bot-pollie/internal/service"
)

const (
	// 持有该锁的实例负责连接Discord、恢复定时器和巡检
	SchedulerOwnerLockName = "pollie:scheduler-owner"
	LockAcquireTimeout     = 30 * time.Second
	ShutdownTimeout        = 10 * time.Second
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.Int("instance", *instanceID))
	logger.Info("配置加载成功")

	// 存储
	mysqlRepo, err := repository.NewMySQLRepository(cfg.MySQL, logger)
	if err != nil {
		logger.Fatal("初始化MySQL仓库失败", zap.Error(err))
	}
	defer mysqlRepo.Close()

	schemaCtx, cancel := context.WithTimeout(context.Background(), LockAcquireTimeout)
	err = mysqlRepo.CreateSchema(schemaCtx)
	cancel()
	if err != nil {
		logger.Fatal("初始化数据表失败", zap.Error(err))
	}

	redisRepo, err := repository.NewRedisRepository(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("初始化Redis仓库失败", zap.Error(err))
	}
	defer redisRepo.Close()

	store := repository.NewCachedPollStore(mysqlRepo, redisRepo, logger)
	logger.Info("存储初始化成功")

	// 分布式锁
	ownerLock, err := lock.NewETCDLock(cfg.ETCD, logger)
	if err != nil {
		logger.Fatal("初始化ETCD分布式锁失败", zap.Error(err))
	}
	defer ownerLock.Close()

	closeLock, err := newCloseLock(cfg, ownerLock, logger)
	if err != nil {
		logger.Fatal("初始化关闭锁失败", zap.Error(err))
	}
	if closeLock != lock.Lock(ownerLock) {
		defer closeLock.Close()
	}

	// 生命周期事件
	producer, err := intkafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("初始化Kafka生产者失败", zap.Error(err))
	}
	defer producer.Close()

	consumer, err := intkafka.NewConsumer(cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("初始化Kafka消费者失败", zap.Error(err))
	}
	defer consumer.Stop()

	pollService := service.NewPollService(store, mysqlRepo, logger)
	consumer.StartConsuming(pollService.ProcessPollEvent)
	logger.Info("Kafka消费者已启动", zap.String("topic", cfg.Kafka.Topic))

	// 调度归属
	isOwner, err := ownerLock.AcquireLock(SchedulerOwnerLockName, LockAcquireTimeout)
	if err != nil {
		logger.Warn("获取调度锁失败，以只读节点模式启动", zap.Error(err))
	}
	if isOwner {
		defer ownerLock.ReleaseLock(SchedulerOwnerLockName)
		logger.Info("获取调度锁成功，本实例负责投票调度")
	} else {
		logger.Info("未获取到调度锁，本实例只提供查询接口")
	}

	scheduler := lifecycle.NewScheduler()
	index := poll.NewIndex()

	if isOwner {
		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			logger.Fatal("创建Discord会话失败", zap.Error(err))
		}
		gw := gateway.NewDiscord(session)

		engine := lifecycle.NewEngine(lifecycle.Deps{
			Gateway:   gw,
			Store:     store,
			Index:     index,
			Scheduler: scheduler,
			Lock:      closeLock,
			Events:    producer,
		}, cfg.Lifecycle, logger)
		defer engine.Shutdown()

		enforcer := poll.NewEnforcer(index, gw, bot.SelfID(session), logger)
		flow := intake.NewFlow(redisRepo, engine, logger)
		discord := bot.New(session, enforcer, flow, cfg.Discord.GuildID, logger)
		if err := discord.Open(); err != nil {
			logger.Fatal("启动Discord机器人失败", zap.Error(err))
		}
		defer discord.Close()

		restoreCtx, cancel := context.WithTimeout(context.Background(), LockAcquireTimeout)
		restored, err := engine.Restore(restoreCtx)
		cancel()
		if err != nil {
			logger.Error("恢复投票定时器失败", zap.Error(err))
		}
		logger.Info("投票调度已启动", zap.Int("restored", restored))

		sweeper := lifecycle.NewSweeper(engine, cfg.Lifecycle.SweepInterval, cfg.Lifecycle.DanglingGrace)
		sweeper.Start()
		defer sweeper.Stop()
	}

	// HTTP服务，支持多实例
	gqlServer := graph.NewGraphQLServer(pollService, cfg.GraphQL.Path)
	router := api.NewRouter(gqlServer, cfg.GraphQL.Path, func() gin.H {
		return gin.H{
			"owner":       isOwner,
			"armedTimers": scheduler.Len(),
			"singlePolls": index.Len(),
		}
	}, logger)

	serverPort := cfg.Server.Port + *instanceID - 1
	srv := &http.Server{Addr: fmt.Sprintf(":%d", serverPort), Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("启动HTTP服务器失败", zap.Error(err))
		}
	}()
	logger.Info("投票机器人已启动", zap.Int("port", serverPort), zap.Bool("owner", isOwner))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("关闭HTTP服务器失败", zap.Error(err))
	}
}

// newCloseLock 根据配置选择关闭投票时使用的锁
func newCloseLock(cfg *config.Config, etcdLock *lock.EtcdLock, logger *zap.Logger) (lock.Lock, error) {
	switch cfg.Lifecycle.CloseLock {
	case "redis":
		return lock.NewRedLock(cfg.Redis, logger)
	case "etcd":
		return etcdLock, nil
	case "local":
		return lock.NewLocalLock(), nil
	default:
		return nil, fmt.Errorf("未知的关闭锁类型 %q", cfg.Lifecycle.CloseLock)
	}
}
