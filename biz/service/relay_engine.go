package service

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	kafkaDal "copytrade-hertz/biz/dal/kafka"
	"copytrade-hertz/biz/engine"
	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

// RelationSnapshot 单条关系在某个成交事件时刻的快照
// 快照在入队前一次性读出，中途改关系不影响本次分发
type RelationSnapshot struct {
	Relation     model.CopyRelation
	SlaveOnline  bool
	SlaveName    string
	SlaveEquity  float64
	MasterEquity float64
	Entitled     bool // 跨用户订阅的资格校验结果
	DailyTrades  int
	DailyLoss    float64
}

// InstructionSink 指令下发出口，执行桥在对端消费
type InstructionSink interface {
	Emit(ctx context.Context, instr *model.CopyInstruction) error
}

// KafkaInstructionSink 指令写 Kafka，按 slave 账户分 key 保序
type KafkaInstructionSink struct {
	Topic string
}

func (k *KafkaInstructionSink) Emit(ctx context.Context, instr *model.CopyInstruction) error {
	data, err := json.Marshal(instr)
	if err != nil {
		return err
	}
	writer := kafkaDal.GetWriter(k.Topic)
	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(instr.SlaveAccountID),
		Value: data,
	})
}

// InstructionSpool 离线 slave 指令补偿队列
type InstructionSpool interface {
	Save(instructionID, slaveAccountID string, instr *model.CopyInstruction) error
	All() (map[string]*model.CopyInstruction, map[string]int, error) // id->指令, id->重试次数
	MarkRetry(instructionID string) error
	Delete(instructionID string) error
}

type relayTask struct {
	trade  *model.LiveTrade
	action string // open / close
}

// RelayEngine 分发引擎
// 每个 master 一条串行队列，master 间完全并行
type RelayEngine struct {
	queues map[string]chan relayTask
	mu     sync.RWMutex

	relations   *RelationStore
	registry    *ConnectionRegistry
	providers   *SignalProviderService
	tracker     *DeliveryTracker
	broadcaster engine.Broadcaster
	sink        InstructionSink
	spool       InstructionSpool

	spoolMaxRetry int

	qpsMu  sync.Mutex
	qps    map[string]*uint64 // master -> 周期内事件数，autoscaler 采样
}

func NewRelayEngine(relations *RelationStore, registry *ConnectionRegistry, providers *SignalProviderService,
	tracker *DeliveryTracker, broadcaster engine.Broadcaster, sink InstructionSink, spool InstructionSpool, spoolMaxRetry int) *RelayEngine {
	return &RelayEngine{
		queues:        make(map[string]chan relayTask),
		relations:     relations,
		registry:      registry,
		providers:     providers,
		tracker:       tracker,
		broadcaster:   broadcaster,
		sink:          sink,
		spool:         spool,
		spoolMaxRetry: spoolMaxRetry,
		qps:           make(map[string]*uint64),
	}
}

// Submit 开仓事件入队，同一 master 串行处理
func (e *RelayEngine) Submit(trade *model.LiveTrade) {
	e.enqueue(relayTask{trade: trade, action: model.InstructionOpen})
}

// SubmitClose 平仓事件与开仓走同一条队列，保证 master 内有序
func (e *RelayEngine) SubmitClose(trade *model.LiveTrade) {
	e.enqueue(relayTask{trade: trade, action: model.InstructionClose})
}

func (e *RelayEngine) enqueue(task relayTask) {
	master := task.trade.MasterAccountID
	e.mu.Lock()
	queue, ok := e.queues[master]
	if !ok {
		queue = make(chan relayTask, 10000)
		e.queues[master] = queue
		go e.relayWorker(master, queue)
	}
	e.mu.Unlock()

	e.countEvent(master)
	queue <- task
}

func (e *RelayEngine) relayWorker(master string, queue chan relayTask) {
	hlog.Infof("[Relay] worker started, master=%s", master)
	for task := range queue {
		switch task.action {
		case model.InstructionOpen:
			e.processOpen(task.trade)
		case model.InstructionClose:
			e.processClose(task.trade)
		}
	}
}

// processOpen 单个开仓事件的完整分发
func (e *RelayEngine) processOpen(trade *model.LiveTrade) {
	snaps := e.snapshotRelations(trade)
	instructions, statuses := BuildInstructions(trade, snaps)

	// pending 状态先挂上，哪怕 slave 离线，看板也能看到缺口
	e.tracker.Attach(trade, statuses)

	e.pushNewTrade(trade)

	ctx := context.Background()
	for _, instr := range instructions {
		e.relations.IncDailyTrades(instr.RelationID)
		if !instr.SlaveOnline {
			e.spoolInstruction(instr)
			continue
		}
		if e.sink == nil {
			continue
		}
		if err := e.sink.Emit(ctx, instr); err != nil {
			// 下发失败直接落定 failed，不影响其他 slave
			hlog.Errorf("[Relay] emit failed, instruction=%s, err=%v", instr.InstructionID, err)
			_ = e.tracker.RecordOutcome(instr.TradeID, instr.SlaveAccountID, model.CopyFailed, nil, nil, 0, "emit failed: "+err.Error())
		}
	}
	hlog.Infof("[Relay] trade fanned out, trade_id=%s, master=%s, instructions=%d", trade.TradeID, trade.MasterAccountID, len(instructions))
}

// processClose 平仓：只向开仓成功的 slave 下发平仓指令
func (e *RelayEngine) processClose(trade *model.LiveTrade) {
	succeeded := e.tracker.SuccessfulSlaves(trade.TradeID)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	for _, sl := range succeeded {
		instr := &model.CopyInstruction{
			InstructionID:   trade.TradeID + "-" + sl.SlaveAccountID + "-close",
			Action:          model.InstructionClose,
			TradeID:         trade.TradeID,
			RelationID:      sl.RelationID,
			MasterAccountID: trade.MasterAccountID,
			SlaveAccountID:  sl.SlaveAccountID,
			OwnerUserID:     trade.OwnerUserID,
			Symbol:          trade.Symbol,
			Type:            trade.Type,
			SlaveTicket:     sl.SlaveTicket,
			SlaveOnline:     e.registry.IsOnline(sl.SlaveAccountID),
			Timestamp:       now,
		}
		if !instr.SlaveOnline {
			e.spoolInstruction(instr)
			continue
		}
		if e.sink == nil {
			continue
		}
		if err := e.sink.Emit(ctx, instr); err != nil {
			hlog.Errorf("[Relay] close emit failed, instruction=%s, err=%v", instr.InstructionID, err)
		}
	}
	// 主单已实现亏损计入各关系当日风控
	if trade.Profit < 0 {
		for _, sl := range succeeded {
			e.relations.AddDailyLoss(sl.RelationID, -trade.Profit)
		}
	}
	e.pushNewTrade(trade)
}

// snapshotRelations 读出该 master 的关系集合点时快照
func (e *RelayEngine) snapshotRelations(trade *model.LiveTrade) []RelationSnapshot {
	relations := e.relations.ActiveRelationsForMaster(trade.MasterAccountID)
	if e.providers != nil {
		relations = append(relations, e.providers.SubscriberRelations(trade.MasterAccountID)...)
	}

	masterEquity := 0.0
	if acct, ok := e.registry.Get(trade.MasterAccountID); ok {
		masterEquity = acct.Equity
	}

	snaps := make([]RelationSnapshot, 0, len(relations))
	for _, r := range relations {
		snap := RelationSnapshot{
			Relation:     r,
			MasterEquity: masterEquity,
			Entitled:     true,
		}
		if acct, ok := e.registry.Get(r.TargetAccountID); ok {
			snap.SlaveOnline = acct.Status == model.StatusOnline
			snap.SlaveName = acct.AccountName
			snap.SlaveEquity = acct.Equity
		}
		if e.providers != nil && r.OwnerUserID != trade.OwnerUserID {
			// 跨用户订阅，资格由计费侧说了算
			snap.Entitled = e.providers.Entitled(trade.MasterAccountID, r.OwnerUserID)
		}
		snap.DailyTrades, snap.DailyLoss = e.relations.DailyStats(r.RelationID)
		snaps = append(snaps, snap)
	}
	return snaps
}

func (e *RelayEngine) spoolInstruction(instr *model.CopyInstruction) {
	if e.spool == nil {
		return
	}
	if err := e.spool.Save(instr.InstructionID, instr.SlaveAccountID, instr); err != nil {
		hlog.Errorf("[Relay] spool failed, instruction=%s, err=%v", instr.InstructionID, err)
		return
	}
	hlog.Infof("[Relay] instruction spooled for offline slave, instruction=%s, slave=%s", instr.InstructionID, instr.SlaveAccountID)
}

// StartSpoolRetry 离线指令重投循环
// slave 回线则下发，超过最大重试落定 failed
func (e *RelayEngine) StartSpoolRetry(ctx context.Context, interval time.Duration) {
	if e.spool == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.retrySpooled(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *RelayEngine) retrySpooled(ctx context.Context) {
	pending, retries, err := e.spool.All()
	if err != nil {
		hlog.Errorf("[Relay] spool scan failed: %v", err)
		return
	}
	for id, instr := range pending {
		if retries[id] >= e.spoolMaxRetry {
			hlog.Warnf("[Relay] spool retry exhausted, instruction=%s, slave=%s", id, instr.SlaveAccountID)
			_ = e.tracker.RecordOutcome(instr.TradeID, instr.SlaveAccountID, model.CopyFailed, nil, nil, 0, "slave unreachable")
			_ = e.spool.Delete(id)
			continue
		}
		if !e.registry.IsOnline(instr.SlaveAccountID) {
			_ = e.spool.MarkRetry(id)
			continue
		}
		instr.SlaveOnline = true
		if e.sink != nil {
			if err := e.sink.Emit(ctx, instr); err != nil {
				hlog.Errorf("[Relay] spool re-emit failed, instruction=%s, err=%v", id, err)
				_ = e.spool.MarkRetry(id)
				continue
			}
		}
		_ = e.spool.Delete(id)
		hlog.Infof("[Relay] spooled instruction delivered, instruction=%s, slave=%s", id, instr.SlaveAccountID)
	}
}

func (e *RelayEngine) pushNewTrade(trade *model.LiveTrade) {
	if e.broadcaster == nil {
		return
	}
	if e.tracker != nil {
		trade = e.tracker.TradeView(trade)
	}
	msg, err := json.Marshal(model.NewTradeEventOf(trade))
	if err != nil {
		return
	}
	e.broadcaster(trade.OwnerUserID, msg)
}

func (e *RelayEngine) countEvent(master string) {
	e.qpsMu.Lock()
	c, ok := e.qps[master]
	if !ok {
		c = new(uint64)
		e.qps[master] = c
	}
	e.qpsMu.Unlock()
	atomic.AddUint64(c, 1)
}

// MasterEventCount 取并清零某 master 的周期事件数
func (e *RelayEngine) MasterEventCount(master string) int {
	e.qpsMu.Lock()
	c, ok := e.qps[master]
	e.qpsMu.Unlock()
	if !ok {
		return 0
	}
	return int(atomic.SwapUint64(c, 0))
}

// SampleEventCounts 一次性取出全部 master 的周期事件数并清零，扩缩容采样用
func (e *RelayEngine) SampleEventCounts() map[string]int {
	e.qpsMu.Lock()
	defer e.qpsMu.Unlock()
	out := make(map[string]int, len(e.qps))
	for master, c := range e.qps {
		out[master] = int(atomic.SwapUint64(c, 0))
	}
	return out
}

// BuildInstructions 纯函数：给定成交事件与关系快照集，产出指令与 pending 状态
// 同样输入必然得到同样输出，方便回放和测试
// 过滤顺序：启用 -> 订阅资格 -> 品种 -> 方向 -> 当日风控，全过才会生成指令
func BuildInstructions(trade *model.LiveTrade, snaps []RelationSnapshot) ([]*model.CopyInstruction, []*model.SlaveStatus) {
	sorted := make([]RelationSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Relation.RelationID < sorted[j].Relation.RelationID
	})

	var instructions []*model.CopyInstruction
	var statuses []*model.SlaveStatus

	for _, snap := range sorted {
		r := snap.Relation
		if !r.IsActive || !snap.Entitled {
			continue
		}
		if !r.SymbolAllowed(trade.Symbol) {
			continue
		}
		if !r.SideAllowed(trade.Type) {
			continue
		}
		if r.MaxDailyTrades > 0 && snap.DailyTrades >= r.MaxDailyTrades {
			continue
		}
		if r.MaxDailyLoss > 0 && snap.DailyLoss >= r.MaxDailyLoss {
			continue
		}

		volume := transformVolume(trade.Volume, &r, snap.SlaveEquity, snap.MasterEquity)
		if volume <= 0 {
			continue
		}
		sl, tp := transformSlTp(trade, &r)

		instructions = append(instructions, &model.CopyInstruction{
			InstructionID:   trade.TradeID + "-" + r.RelationID,
			Action:          model.InstructionOpen,
			TradeID:         trade.TradeID,
			RelationID:      r.RelationID,
			MasterAccountID: trade.MasterAccountID,
			SlaveAccountID:  r.TargetAccountID,
			OwnerUserID:     r.OwnerUserID,
			Symbol:          trade.Symbol,
			Type:            trade.Type,
			Volume:          volume,
			StopLoss:        sl,
			TakeProfit:      tp,
			SlaveOnline:     snap.SlaveOnline,
			Timestamp:       trade.Timestamp,
		})
		statuses = append(statuses, &model.SlaveStatus{
			TradeID:          trade.TradeID,
			RelationID:       r.RelationID,
			SlaveAccountID:   r.TargetAccountID,
			SlaveAccountName: snap.SlaveName,
			Status:           model.CopyPending,
		})
	}
	return instructions, statuses
}

// transformVolume 按关系配置换算手数，0.01 手步进，封顶 MaxLotSize
func transformVolume(masterVolume float64, r *model.CopyRelation, slaveEquity, masterEquity float64) float64 {
	var v float64
	switch r.VolumeMode {
	case model.VolumeModeMultiply:
		v = masterVolume * r.CopyRatio
	case model.VolumeModeFixed:
		v = r.FixedVolume
	case model.VolumeModeProportional:
		if masterEquity <= 0 {
			return 0
		}
		v = masterVolume * slaveEquity / masterEquity
	default:
		return 0
	}
	if r.MaxLotSize > 0 && v > r.MaxLotSize {
		v = r.MaxLotSize
	}
	v = math.Round(v*100) / 100
	if v < 0.01 {
		return 0
	}
	return v
}

// transformSlTp 按 SlTpMode 换算止损止盈价
func transformSlTp(trade *model.LiveTrade, r *model.CopyRelation) (float64, float64) {
	switch r.SlTpMode {
	case model.SlTpModeNone:
		return 0, 0
	case model.SlTpModeCopy:
		return trade.StopLoss, trade.TakeProfit
	case model.SlTpModeMultiply:
		return scaleDistance(trade.OpenPrice, trade.StopLoss, r.SlTpMultiplier),
			scaleDistance(trade.OpenPrice, trade.TakeProfit, r.SlTpMultiplier)
	case model.SlTpModeFixedPips:
		pip := pipSize(trade.Symbol)
		var sl, tp float64
		if r.SlFixedPips > 0 {
			if trade.Type == model.SideBuy {
				sl = trade.OpenPrice - r.SlFixedPips*pip
			} else {
				sl = trade.OpenPrice + r.SlFixedPips*pip
			}
		}
		if r.TpFixedPips > 0 {
			if trade.Type == model.SideBuy {
				tp = trade.OpenPrice + r.TpFixedPips*pip
			} else {
				tp = trade.OpenPrice - r.TpFixedPips*pip
			}
		}
		return sl, tp
	default:
		return 0, 0
	}
}

// scaleDistance 保持方向，点差按倍数缩放
func scaleDistance(openPrice, level, multiplier float64) float64 {
	if level == 0 {
		return 0
	}
	return openPrice + (level-openPrice)*multiplier
}

// pipSize 日元对 0.01，其余 0.0001
func pipSize(symbol string) float64 {
	if strings.Contains(strings.ToUpper(symbol), "JPY") {
		return 0.01
	}
	return 0.0001
}
