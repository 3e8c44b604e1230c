package handler

import (
	"copytrade-hertz/biz/service"
)

// 包级服务单例，启动时注入
var (
	Registry  *service.ConnectionRegistry
	Relations *service.RelationStore
	Ingest    *service.IngestService
	Tracker   *service.DeliveryTracker
	Window    *service.TradeWindow
	Analytics *service.AnalyticsService
	Providers *service.SignalProviderService
)

// Init 注入各处理器依赖的服务
func Init(registry *service.ConnectionRegistry, relations *service.RelationStore, ingest *service.IngestService,
	tracker *service.DeliveryTracker, window *service.TradeWindow, analytics *service.AnalyticsService,
	providers *service.SignalProviderService) {
	Registry = registry
	Relations = relations
	Ingest = ingest
	Tracker = tracker
	Window = window
	Analytics = analytics
	Providers = providers
}
