package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"copytrade-hertz/biz/dal"
	kafkaDal "copytrade-hertz/biz/dal/kafka"
	"copytrade-hertz/biz/dal/rocksdb"
	"copytrade-hertz/biz/engine"
	"copytrade-hertz/biz/handler"
	"copytrade-hertz/biz/service"
	bizUtil "copytrade-hertz/biz/util"
	"copytrade-hertz/conf"
	"copytrade-hertz/middleware"
	"copytrade-hertz/server"
	"copytrade-hertz/util"

	hertzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/netpoll"
	"github.com/hertz-contrib/cors"
	"github.com/hertz-contrib/gzip"
	"github.com/hertz-contrib/logger/accesslog"
	"github.com/hertz-contrib/pprof"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := conf.GetConf()
	conf.InitLogger()
	if err := util.InitSonyFlake(); err != nil {
		panic(err)
	}
	if err := netpoll.SetNumLoops(runtime.NumCPU()); err != nil {
		hlog.Warnf("[Main] netpoll loops config failed: %v", err)
	}

	dal.Init()
	defer kafkaDal.CloseAllWriters()
	defer rocksdb.CloseSpoolDB()

	if err := engine.InitBroadcastPool(1024); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- 服务装配 ---
	reg := service.NewConnectionRegistry(
		time.Duration(cfg.Heartbeat.OfflineAfter)*time.Second,
		time.Duration(cfg.Heartbeat.EvictAfter)*time.Second,
		server.Broadcast,
	)
	reg.StartSweeper(ctx, time.Duration(cfg.Heartbeat.SweepInterval)*time.Second)

	relations := service.NewRelationStore()
	relations.SetOwnership(reg)
	if err := relations.LoadFromDB(); err != nil {
		hlog.Errorf("[Main] relation load failed: %v", err)
	}

	providers := service.NewSignalProviderService(service.RedisEntitlementChecker{})
	if err := providers.LoadFromDB(); err != nil {
		hlog.Errorf("[Main] provider load failed: %v", err)
	}

	tracker := service.NewDeliveryTracker(server.Broadcast, kafkaDal.Topic("delivery_outcomes"))
	window := service.NewTradeWindow(cfg.Window.RecentTradesPerUser)
	// 成交出窗口时同步清掉投递追踪，内存占用跟着窗口走
	window.OnEvict(tracker.Release)
	analytics := service.NewAnalyticsService(reg, window, tracker)

	sink := &service.KafkaInstructionSink{Topic: kafkaDal.Topic("copy_instructions")}
	spool := service.NewRocksSpool()
	spoolMaxRetry := cfg.RelayEngine.SpoolMaxRetry
	if spoolMaxRetry <= 0 {
		spoolMaxRetry = rocksdb.MaxRetryCount
	}
	relay := service.NewRelayEngine(relations, reg, providers, tracker, server.Broadcast, sink, spool, spoolMaxRetry)
	relay.StartSpoolRetry(ctx, 30*time.Second)

	authorizer := service.NewHTTPTerminalAuthorizer(cfg.License.VerifyURL, time.Duration(cfg.License.TimeoutMs)*time.Millisecond)
	ingest := service.NewIngestService(reg, relay, tracker, window, authorizer)
	service.InitTradeJournal(kafkaDal.Topic("trade_events"))
	defer service.ShutdownTradeJournal()

	handler.Init(reg, relations, ingest, tracker, window, analytics, providers)
	server.InjectServices(reg, window, tracker)

	// --- Consul 注册与分区表 ---
	localAddr := fmt.Sprintf("%s:%d", bizUtil.GetLocalIP(), cfg.RelayEngine.RelayPort)
	masters := bizUtil.ParseAccounts(cfg.RelayEngine.MasterAccounts)
	var pm *service.PartitionManager
	if len(cfg.Registry.RegistryAddress) > 0 {
		if err := service.InitConsulHelper(cfg.Registry.RegistryAddress, cfg.RelayEngine.NodeID, masters, cfg.RelayEngine.RelayPort); err != nil {
			hlog.Errorf("[Main] consul register failed, running standalone: %v", err)
		} else {
			var err error
			pm, err = service.NewPartitionManager(cfg.Registry.RegistryAddress)
			if err != nil {
				hlog.Errorf("[Main] partition manager init failed: %v", err)
			} else {
				if err := pm.LoadFromConsul(); err != nil {
					hlog.Errorf("[Main] partition table load failed: %v", err)
				}
				pm.WatchPartitionTable(ctx)
				scaler := service.NewPartitionAutoScaler(pm,
					&service.RelayLoadMetrics{Engine: relay},
					service.NewPartitionCountWorkerLoad(pm, service.GetConsulHelper()),
					time.Minute)
				go scaler.Run(ctx)
			}
		}
	}

	// --- 看板 WebSocket 服务 ---
	if cfg.Hertz.WsPort != "" {
		go func() {
			ws := server.NewWebSocketServer(cfg.Hertz.WsPort)
			ws.Spin()
		}()
	}

	// --- API 服务 ---
	h := hertzServer.Default(hertzServer.WithHostPorts(cfg.Hertz.Address))
	h.Use(cors.Default())
	if cfg.Hertz.EnableGzip {
		h.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	if cfg.Hertz.EnableAccessLog {
		h.Use(accesslog.New())
	}
	if cfg.Hertz.EnablePprof {
		pprof.Register(h)
	}
	if pm != nil {
		h.Use(middleware.DistributedRouteMiddleware(pm, localAddr))
	}

	registerRoutes(h)
	h.Spin()
}

func registerRoutes(h *hertzServer.Hertz) {
	api := h.Group("/api")

	api.POST("/heartbeat", handler.Heartbeat)
	api.POST("/disconnect", handler.Disconnect)
	api.GET("/accounts", handler.ListAccounts)

	api.POST("/trade/open", handler.TradeOpen)
	api.POST("/trade/close", handler.TradeClose)
	api.POST("/trade/outcome", handler.RecordOutcome)
	api.GET("/trades/recent", handler.RecentTrades)

	api.POST("/relation", handler.CreateRelation)
	api.PUT("/relation", handler.UpdateRelation)
	api.GET("/relation/:id", handler.GetRelation)
	api.DELETE("/relation/:id", handler.DeleteRelation)
	api.GET("/relations", handler.ListRelations)

	api.POST("/provider", handler.CreateProvider)
	api.GET("/providers", handler.ListProviders)
	api.POST("/provider/subscribe", handler.SubscribeProvider)
	api.POST("/provider/unsubscribe", handler.UnsubscribeProvider)

	api.GET("/analytics/summary", handler.Summary)
}
