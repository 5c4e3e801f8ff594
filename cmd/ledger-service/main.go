package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"vaultbank.com/internal/ledger/config"
	"vaultbank.com/internal/ledger/core/service"
	"vaultbank.com/internal/ledger/domain"
	"vaultbank.com/internal/ledger/infra/ethereum"
	"vaultbank.com/internal/ledger/infra/memory"
	"vaultbank.com/internal/ledger/infra/mock"
	"vaultbank.com/internal/ledger/infra/persistence"
	"vaultbank.com/internal/ledger/infra/rediscache"
	"vaultbank.com/internal/ledger/server"
	pkgconfig "vaultbank.com/pkg/config"
	"vaultbank.com/pkg/logger"
	"vaultbank.com/pkg/metrics"
	"vaultbank.com/pkg/orm"
	"vaultbank.com/pkg/trace"
	"vaultbank.com/pkg/xredis"
)

func main() {
	// 1. 加载配置
	var c config.Config
	if _, err := pkgconfig.LoadAndWatch("ledger", &c); err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if c.Name == "" {
		c.Name = "ledger-service"
	}

	// 2. 初始化基础设施
	logger.Init(c.Name, c.LogLevel)
	defer logger.Sync()
	metrics.MustRegister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.Trace.Endpoint != "" {
		shutdown, err := trace.InitTrace(c.Name, c.Trace.Endpoint)
		if err != nil {
			logger.Fatal(ctx, "init trace failed", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// 3. 存储层：有 DSN 走 MySQL，否则内存模式
	var store domain.Store
	if c.Mysql.DSN != "" {
		db := orm.NewMySQL(&orm.Config{
			DSN:         c.Mysql.DSN,
			MaxIdle:     c.Mysql.MaxIdle,
			MaxOpen:     c.Mysql.MaxOpen,
			MaxLifetime: c.Mysql.MaxLifetime,
		})
		repo := persistence.New(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Fatal(ctx, "auto migrate failed", zap.Error(err))
		}
		store = repo
	} else {
		logger.Warn(ctx, "mysql dsn empty, using in-memory store")
		store = memory.NewStore()
	}

	// 4. Redis：余额缓存 + 提现防重；没配则降级
	var (
		rdb   *redis.Client
		cache service.BalanceCache = service.NopCache{}
	)
	if c.Redis.Addr != "" {
		rdb = xredis.NewRedis(&xredis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		cache = rediscache.New(rdb)
	}

	// 5. 链上网关：有节点走真实网关，否则 mock (演示模式)
	var (
		oracle  domain.PriceOracle
		meta    domain.AssetMetadata
		gateway domain.TransferGateway
	)
	if c.Eth.NodeURL != "" {
		client, err := ethereum.Dial(ctx, c.Eth.NodeURL, c.Eth.PrivateKey)
		if err != nil {
			logger.Fatal(ctx, "dial eth node failed", zap.Error(err))
		}
		defer client.Close()
		oracle = ethereum.NewOracle(client)
		meta = ethereum.NewMetadata(client)
		gateway = ethereum.NewTransfer(client)
	} else {
		logger.Warn(ctx, "eth node url empty, using mock gateways")
		oracle = mock.NewOracle()
		meta = mock.NewMetadata()
		gateway = mock.NewTransfer()
	}

	// 6. 组装账本核心
	native := domain.Asset{
		Symbol:          orDefault(c.Native.Symbol, "ETH"),
		WithdrawalLimit: mustAmount(c.Native.WithdrawalLimit),
		DepositLimit:    mustAmount(c.Native.DepositLimit),
		BankCap:         mustAmount(c.Native.BankCap),
		PriceFeed:       c.Native.PriceFeed,
		DeviationBps:    c.Native.DeviationBps,
		TotalBalance:    decimal.Zero,
	}
	registry := service.NewRegistryService(store, oracle, meta, native)
	if err := registry.EnsureNative(ctx); err != nil {
		logger.Fatal(ctx, "bootstrap native asset failed", zap.Error(err))
	}

	guard := service.NewGuard()
	priceSvc := service.NewPriceService(oracle)
	ledger := service.NewLedgerService(store, registry, priceSvc, gateway, guard, cache, service.Limits{
		DailyDepositUSD:  mustAmount(c.Limits.DailyDepositUSD),
		DailyWithdrawUSD: mustAmount(c.Limits.DailyWithdrawUSD),
	})

	// 7. HTTP 服务
	h := server.NewHandler(ledger, registry, rdb)
	srv := server.NewRouter(ctx, orDefault(c.HTTP.Addr, ":8080"), h, server.AuthConfig{
		AdminToken: c.Auth.AdminToken,
		Tokens:     c.Auth.Tokens,
	})

	go func() {
		logger.Info(ctx, "ledger service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server failed", zap.Error(err))
		}
	}()

	// 8. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown error", zap.Error(err))
	}
	logger.Info(ctx, "bye")
}

func mustAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil || !v.IsInteger() {
		log.Fatalf("invalid amount in config: %q", s)
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
