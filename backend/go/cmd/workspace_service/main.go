package main

import (
	"SynapseCode/backend/go/internal/assistant"
	"SynapseCode/backend/go/internal/changefeed"
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/internal/database/kafka"
	"SynapseCode/backend/go/internal/database/mongo"
	"SynapseCode/backend/go/internal/database/redis"
	"SynapseCode/backend/go/internal/discovery/etcd"
	"SynapseCode/backend/go/internal/executor"
	"SynapseCode/backend/go/internal/gateway"
	"SynapseCode/backend/go/internal/llm"
	"SynapseCode/backend/go/internal/mailer"
	"SynapseCode/backend/go/internal/presence"
	"SynapseCode/backend/go/internal/workspace_service/api"
	"SynapseCode/backend/go/internal/workspace_service/service"
	"SynapseCode/backend/go/internal/workspace_service/store"
	"SynapseCode/backend/go/pkg/auth"
	"SynapseCode/backend/go/pkg/circuitbreaker"
	pkghttp "SynapseCode/backend/go/pkg/http"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	serviceName     = "workspace_service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	configPath := os.Getenv("SYNAPSE_CONFIG")
	if configPath == "" {
		configPath = "backend/go/internal/config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	nodeID := uuid.NewString()
	appLogger := logger.New(serviceName, "", "").WithField("node_id", nodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 文档存储
	var docStore store.Store
	var closeMongo func()
	switch cfg.WorkspaceService.StoreBackend {
	case "mongo":
		client, db, err := mongo.Connect(ctx, &cfg.Databases.MongoDB, appLogger)
		if err != nil {
			appLogger.WithErr(err).Fatal("连接 MongoDB 失败")
		}
		ms := store.NewMongoStore(client, db)
		if err := ms.EnsureIndexes(ctx); err != nil {
			appLogger.WithErr(err).Fatal("创建 MongoDB 索引失败")
		}
		docStore = ms
		closeMongo = func() { _ = client.Disconnect(context.Background()) }
	default:
		appLogger.Warn("使用内存文档存储，数据不会持久化")
		docStore = store.NewMemoryStore()
	}

	// 变更流，配置了主题时通过 Kafka 在实例间转发
	hubOpts := changefeed.Options{NodeID: nodeID, Logger: appLogger}
	var relay *changefeed.KafkaRelay
	if topic := cfg.WorkspaceService.ChangeFeedTopic; topic != "" && len(cfg.Databases.Kafka.Brokers) > 0 {
		admin, err := kafka.Dial(ctx, &cfg.Databases.Kafka, appLogger)
		if err != nil {
			appLogger.WithErr(err).Fatal("连接 Kafka 失败")
		}
		if _, err := admin.EnsureTopics(append(cfg.Databases.Kafka.Topics, topic)...); err != nil {
			appLogger.WithErr(err).Fatal("准备 Kafka 主题失败")
		}
		_ = admin.Close()

		group := cfg.WorkspaceService.ConsumerGroup
		if group == "" {
			group = "workspace-" + nodeID
		}
		relay = changefeed.NewKafkaRelay(cfg.Databases.Kafka.Brokers, topic, group, appLogger)
		hubOpts.Relay = relay
	}
	hub := changefeed.NewHub(hubOpts)
	if relay != nil {
		relay.Start(ctx, hub)
		appLogger.WithField("topic", cfg.WorkspaceService.ChangeFeedTopic).Info("变更流 Kafka 转发已启动")
	}

	// 在线状态
	var presenceStore presence.Store = presence.NewMemoryStore()
	var closeRedis func()
	if cfg.Presence.Backend == "redis" {
		rdb, err := redis.Connect(ctx, &cfg.Databases.Redis, appLogger)
		if err != nil {
			appLogger.WithErr(err).Fatal("连接 Redis 失败")
		}
		presenceStore = presence.NewRedisStore(rdb)
		closeRedis = func() { _ = rdb.Close() }
	}
	pres := presence.NewService(presenceStore, presence.Options{
		Timeout:       config.Duration(cfg.Presence.Timeout),
		SweepInterval: config.Duration(cfg.Presence.SweepInterval),
		QueueSize:     cfg.Presence.QueueSize,
		Logger:        appLogger,
	})
	pres.Start(ctx)

	// 外部服务：生成式文本、代码执行、邮件
	opts := service.Options{
		IdempotencyTTL:   config.Duration(cfg.WorkspaceService.IdempotencyTTL),
		IdempotencyLimit: cfg.WorkspaceService.IdempotencyLimit,
		Logger:           appLogger,
	}
	if gen, err := llm.NewClient(ctx, cfg.LLM); err != nil {
		appLogger.WithErr(err).Warn("生成式文本服务不可用，AI 功能将被禁用")
	} else {
		var breaker circuitbreaker.CircuitBreaker
		if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
			breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, config.Duration(cb.Timeout))
		}
		opts.Assistant = assistant.New(llm.NewGuarded(gen, breaker, config.Duration(cfg.LLM.Timeout)))
	}
	if cfg.Executor.BaseURL != "" {
		client, err := pkghttp.NewClient(cfg.Middleware.CircuitBreaker, config.Duration(cfg.Executor.Timeout))
		if err != nil {
			appLogger.WithErr(err).Fatal("创建代码执行客户端失败")
		}
		opts.Executor = executor.NewJudge0(client, cfg.Executor.BaseURL, cfg.Executor.APIKey, cfg.Executor.APIHost)
	}
	if ses, err := mailer.NewSES(ctx, cfg.Mail); err != nil {
		appLogger.WithErr(err).Warn("邮件服务未配置，邀请通知将不会发送")
	} else {
		opts.Mailer = ses
	}

	svc, err := service.New(docStore, hub, opts)
	if err != nil {
		appLogger.WithErr(err).Fatal("创建工作区服务失败")
	}
	tokens := auth.NewTokens(cfg.Auth.JwtSecret, time.Duration(cfg.Auth.TokenTTL)*time.Second)

	server, err := pkghttp.NewServer(cfg, serviceName, pkghttp.WithAddress(cfg.WorkspaceService.ServerAddress))
	if err != nil {
		appLogger.WithErr(err).Fatal("创建 HTTP 服务失败")
	}
	api.RegisterRoutes(server.Engine(), api.NewHandler(svc), tokens)

	gw := gateway.New(svc, hub, pres, gateway.Options{
		WriteTimeout: config.Duration(cfg.Gateway.WriteTimeout),
		PongWait:     config.Duration(cfg.Gateway.PongTimeout),
		PingInterval: config.Duration(cfg.Gateway.PingInterval),
		SendBuffer:   cfg.Gateway.OutboundBuffer,
		DrainTimeout: config.Duration(cfg.Gateway.DrainTimeout),
		CheckOrigin:  allowOrigins(cfg.Gateway.AllowedOrigins),
		Logger:       appLogger,
	})
	gw.RegisterRoutes(server.Engine(), tokens)

	// HTTP 服务关闭时同时排空所有 WebSocket 会话
	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	drained := make(chan error, 1)
	server.RegisterOnShutdown(func() { drained <- gw.Shutdown(drainCtx) })

	var registration *etcd.Registration
	var discovery *etcd.ServiceDiscovery
	if cfg.WorkspaceService.RegisterInEtcd {
		discovery, err = etcd.NewServiceDiscovery(&cfg.Databases.Etcd, appLogger)
		if err != nil {
			appLogger.WithErr(err).Fatal("连接 etcd 失败")
		}
		addr := cfg.WorkspaceService.AdvertiseAddress
		if addr == "" {
			addr = cfg.WorkspaceService.ServerAddress
		}
		registration, err = discovery.Register(ctx, serviceName, etcd.Node{ID: nodeID, Address: addr}, 10)
		if err != nil {
			appLogger.WithErr(err).Fatal("注册网关节点失败")
		}
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithErr(err).Fatal("HTTP 服务启动失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("正在关闭服务...")

	// 先从 etcd 下线，新连接不再被路由到本节点
	if registration != nil {
		if err := registration.Close(context.Background()); err != nil {
			appLogger.WithErr(err).Warn("注销 etcd 节点失败")
		}
		_ = discovery.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithErr(err).Error("HTTP 服务未能正常关闭")
	}
	if err := <-drained; err != nil {
		appLogger.WithErr(err).Warn("部分会话被强制关闭")
	}

	svc.Wait()
	pres.Stop()
	cancel()
	if relay != nil {
		if err := relay.Close(); err != nil {
			appLogger.WithErr(err).Error("关闭 Kafka 转发失败")
		}
	}
	hub.Close()
	if closeRedis != nil {
		closeRedis()
	}
	if closeMongo != nil {
		closeMongo()
	}
	appLogger.Info("服务已停止")
}

// allowOrigins 返回 WebSocket 握手的来源检查，列表为空时允许所有来源。
func allowOrigins(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
