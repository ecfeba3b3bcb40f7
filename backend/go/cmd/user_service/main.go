package main

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/internal/database/mysql"
	"SynapseCode/backend/go/internal/database/redis"
	"SynapseCode/backend/go/internal/mailer"
	"SynapseCode/backend/go/internal/user_service/api"
	"SynapseCode/backend/go/internal/user_service/service"
	"SynapseCode/backend/go/internal/user_service/store"
	"SynapseCode/backend/go/pkg/auth"
	pkghttp "SynapseCode/backend/go/pkg/http"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const serviceName = "user_service"

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
	appLogger := logger.New(serviceName, "", "")

	ctx := context.Background()

	var users store.Users
	closeDB := func() {}
	if cfg.UserService.StoreBackend == "mysql" {
		db, err := mysql.Open(ctx, &cfg.Databases.MySQL, appLogger)
		if err != nil {
			appLogger.WithErr(err).Fatal("连接 MySQL 失败")
		}
		gormStore := store.NewStore(db)
		if err := gormStore.Migrate(); err != nil {
			appLogger.WithErr(err).Fatal("数据库迁移失败")
		}
		users = gormStore
		closeDB = func() { _ = mysql.Close(db) }
	} else {
		appLogger.Warn("使用内存用户存储，数据不会持久化")
		users = store.NewMemoryStore()
	}

	var resets store.ResetTokens
	closeRedis := func() {}
	if cfg.Databases.Redis.Address != "" {
		rdb, err := redis.Connect(ctx, &cfg.Databases.Redis, appLogger)
		if err != nil {
			appLogger.WithErr(err).Fatal("连接 Redis 失败")
		}
		resets = store.NewRedisResetTokens(rdb)
		closeRedis = func() { _ = rdb.Close() }
	} else {
		resets = store.NewMemoryResetTokens(nil)
	}

	opts := service.Options{
		ResetTTL: time.Duration(cfg.Auth.ResetTokenTTL) * time.Second,
		ResetURL: cfg.Auth.ResetURL,
		Logger:   appLogger,
	}
	if ses, err := mailer.NewSES(ctx, cfg.Mail); err != nil {
		appLogger.WithErr(err).Warn("邮件服务未配置，无法发送重置密码邮件")
	} else {
		opts.Mailer = ses
	}
	if clientID := cfg.Auth.Google.ClientID; clientID != "" {
		opts.Google = service.NewIDTokenVerifier(clientID)
	}

	tokens := auth.NewTokens(cfg.Auth.JwtSecret, time.Duration(cfg.Auth.TokenTTL)*time.Second)
	userService := service.NewService(users, resets, tokens, opts)

	server, err := pkghttp.NewServer(cfg, serviceName, pkghttp.WithAddress(cfg.UserService.ServerAddress))
	if err != nil {
		appLogger.WithErr(err).Fatal("创建 HTTP 服务失败")
	}
	api.RegisterRoutes(server.Engine(), api.NewHandler(userService), tokens)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithErr(err).Fatal("HTTP 服务启动失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithErr(err).Error("HTTP 服务未能正常关闭")
	}
	closeRedis()
	closeDB()
	appLogger.Info("服务已停止")
}
