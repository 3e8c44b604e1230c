package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	kafkaDal "copytrade-hertz/biz/dal/kafka"
	"copytrade-hertz/biz/dal/pg"
	"copytrade-hertz/biz/engine"
	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

const (
	slavePending int32 = iota
	slaveSuccess
	slaveFailed
)

// trackedSlave 单个 slave 的落定槽
// state 只允许 pending -> success/failed 一次，CAS 决胜
type trackedSlave struct {
	state  int32
	status *model.SlaveStatus
}

// trackedTrade attach 之后 slaves 集合不再增删，读无需加锁
type trackedTrade struct {
	trade  *model.LiveTrade
	slaves map[string]*trackedSlave
}

type trackerShard struct {
	mu     sync.RWMutex
	trades map[string]*trackedTrade
}

// DeliveryTracker 跟单投递结果追踪
// 每条 (trade, slave) 的结果只写一次，重复上报返回 ErrAlreadyRecorded
type DeliveryTracker struct {
	shards       [32]*trackerShard
	broadcaster  engine.Broadcaster
	outcomeTopic string
}

func NewDeliveryTracker(broadcaster engine.Broadcaster, outcomeTopic string) *DeliveryTracker {
	t := &DeliveryTracker{
		broadcaster:  broadcaster,
		outcomeTopic: outcomeTopic,
	}
	for i := range t.shards {
		t.shards[i] = &trackerShard{trades: make(map[string]*trackedTrade)}
	}
	return t
}

func (t *DeliveryTracker) shardFor(tradeID string) *trackerShard {
	return t.shards[fnv32(tradeID)%32]
}

// Attach 挂接分发产生的 pending 状态并落库
// trade.SlaveStatuses 与追踪槽共享指针，落定时看板数据同步更新
func (t *DeliveryTracker) Attach(trade *model.LiveTrade, statuses []*model.SlaveStatus) {
	trade.SlaveStatuses = statuses

	tracked := &trackedTrade{
		trade:  trade,
		slaves: make(map[string]*trackedSlave, len(statuses)),
	}
	for _, st := range statuses {
		tracked.slaves[st.SlaveAccountID] = &trackedSlave{state: slavePending, status: st}
		if pg.GormDB != nil {
			if err := pg.UpsertSlaveStatus(st); err != nil {
				hlog.Errorf("[Tracker] slave status persist failed, trade_id=%s, slave=%s, err=%v", st.TradeID, st.SlaveAccountID, err)
			}
		}
	}

	shard := t.shardFor(trade.TradeID)
	shard.mu.Lock()
	shard.trades[trade.TradeID] = tracked
	shard.mu.Unlock()
}

// RecordOutcome 落定一条投递结果
// 未知 trade/slave 按序返回 ErrUnknownTrade/ErrUnknownSlave
// 并发重复落定只有第一个赢，其余拿 ErrAlreadyRecorded
func (t *DeliveryTracker) RecordOutcome(tradeID, slaveAccountID, outcome string, executionTimeMs *int64, slippagePips *float64, slaveTicket int64, errMsg string) error {
	if outcome != model.CopySuccess && outcome != model.CopyFailed {
		return fmt.Errorf("invalid outcome %q", outcome)
	}

	shard := t.shardFor(tradeID)
	shard.mu.RLock()
	tracked, ok := shard.trades[tradeID]
	shard.mu.RUnlock()
	if !ok {
		return ErrUnknownTrade
	}
	slot, ok := tracked.slaves[slaveAccountID]
	if !ok {
		return ErrUnknownSlave
	}

	target := slaveSuccess
	if outcome == model.CopyFailed {
		target = slaveFailed
	}
	// CAS 决胜和字段写入都在分片写锁内，看板读路径不会看到半写状态
	shard.mu.Lock()
	if !atomic.CompareAndSwapInt32(&slot.state, slavePending, target) {
		shard.mu.Unlock()
		return ErrAlreadyRecorded
	}
	slot.status.Status = outcome
	slot.status.ExecutionTimeMs = executionTimeMs
	slot.status.SlippagePips = slippagePips
	slot.status.SlaveTicket = slaveTicket
	slot.status.Error = errMsg
	shard.mu.Unlock()

	if pg.GormDB != nil {
		if err := pg.UpsertSlaveStatus(slot.status); err != nil {
			hlog.Errorf("[Tracker] outcome persist failed, trade_id=%s, slave=%s, err=%v", tradeID, slaveAccountID, err)
		}
	}
	t.journalOutcome(slot.status)
	t.pushCopied(tracked.trade, slot.status)

	hlog.Infof("[Tracker] outcome recorded, trade_id=%s, slave=%s, status=%s", tradeID, slaveAccountID, outcome)
	return nil
}

// SucceededSlave 平仓路由用的成功记录
type SucceededSlave struct {
	SlaveAccountID string
	RelationID     string
	SlaveTicket    int64
}

// SuccessfulSlaves 列出已落定 success 的 slave
func (t *DeliveryTracker) SuccessfulSlaves(tradeID string) []SucceededSlave {
	shard := t.shardFor(tradeID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	tracked, ok := shard.trades[tradeID]
	if !ok {
		return nil
	}
	var out []SucceededSlave
	for slaveID, slot := range tracked.slaves {
		if atomic.LoadInt32(&slot.state) == slaveSuccess {
			out = append(out, SucceededSlave{
				SlaveAccountID: slaveID,
				RelationID:     slot.status.RelationID,
				SlaveTicket:    slot.status.SlaveTicket,
			})
		}
	}
	return out
}

// StatusView 分片读锁下拷贝全部状态，看板读路径用
// 不在追踪中的 trade 返回 false，调用方直接读原 slice，没人再写它
func (t *DeliveryTracker) StatusView(tradeID string) ([]model.SlaveStatus, bool) {
	shard := t.shardFor(tradeID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	tracked, ok := shard.trades[tradeID]
	if !ok {
		return nil, false
	}
	out := make([]model.SlaveStatus, 0, len(tracked.trade.SlaveStatuses))
	for _, st := range tracked.trade.SlaveStatuses {
		out = append(out, *st)
	}
	return out, true
}

// TradeView 序列化前的快照副本，状态字段在锁内拷出
func (t *DeliveryTracker) TradeView(trade *model.LiveTrade) *model.LiveTrade {
	cp := *trade
	statuses, ok := t.StatusView(trade.TradeID)
	if !ok {
		return &cp
	}
	ptrs := make([]*model.SlaveStatus, len(statuses))
	for i := range statuses {
		ptrs[i] = &statuses[i]
	}
	cp.SlaveStatuses = ptrs
	return &cp
}

// Lookup 按 tradeID 取追踪中的成交
func (t *DeliveryTracker) Lookup(tradeID string) (*model.LiveTrade, bool) {
	shard := t.shardFor(tradeID)
	shard.mu.RLock()
	tracked, ok := shard.trades[tradeID]
	shard.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return tracked.trade, true
}

// Release 平仓归档后移出内存追踪
func (t *DeliveryTracker) Release(tradeID string) {
	shard := t.shardFor(tradeID)
	shard.mu.Lock()
	delete(shard.trades, tradeID)
	shard.mu.Unlock()
}

func (t *DeliveryTracker) journalOutcome(st *model.SlaveStatus) {
	if t.outcomeTopic == "" {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	writer := kafkaDal.GetWriter(t.outcomeTopic)
	if err := writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(st.TradeID),
		Value: data,
	}); err != nil {
		hlog.Errorf("[Tracker] outcome journal failed, trade_id=%s, err=%v", st.TradeID, err)
	}
}

// 热路径推送，手动拼 JSON 走对象池，避免每条落定都 Marshal 分配
func (t *DeliveryTracker) pushCopied(trade *model.LiveTrade, st *model.SlaveStatus) {
	if t.broadcaster == nil {
		return
	}
	buf := engine.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.WriteString(`{"type":"`)
	buf.WriteString(model.EvtTradeCopied)
	buf.WriteString(`","user_id":"`)
	buf.WriteString(trade.OwnerUserID)
	buf.WriteString(`","trade_id":"`)
	buf.WriteString(trade.TradeID)
	buf.WriteString(`","slave_account_id":"`)
	buf.WriteString(st.SlaveAccountID)
	buf.WriteString(`","status":"`)
	buf.WriteString(st.Status)
	buf.WriteString(`"}`)

	// 消息会进用户推送缓冲区，必须独立成副本
	msg := make([]byte, buf.Len())
	copy(msg, buf.Bytes())
	engine.BufferPool.Put(buf)

	t.broadcaster(trade.OwnerUserID, msg)
}
