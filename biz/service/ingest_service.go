package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	kafkaDal "copytrade-hertz/biz/dal/kafka"
	"copytrade-hertz/biz/dal/pg"
	redisDal "copytrade-hertz/biz/dal/redis"
	"copytrade-hertz/biz/engine"
	"copytrade-hertz/biz/model"
	"copytrade-hertz/util"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

// TerminalAuthorizer 终端上报鉴权
type TerminalAuthorizer interface {
	Authorize(ctx context.Context, accountID, ownerUserID string) error
}

// IngestService 成交事件接入
// 按 (master, ticket) 幂等去重，master 内按到达顺序编号，确认前完成分发入队
type IngestService struct {
	registry   *ConnectionRegistry
	relay      engine.Relayer
	tracker    *DeliveryTracker
	window     *TradeWindow
	authorizer TerminalAuthorizer

	idGen func() (uint64, error)

	seqs        sync.Map // master -> *int64
	seen        sync.Map // master:ticket -> tradeID
	openTickets sync.Map // master:ticket -> *model.LiveTrade
}

func NewIngestService(registry *ConnectionRegistry, relay engine.Relayer, tracker *DeliveryTracker,
	window *TradeWindow, authorizer TerminalAuthorizer) *IngestService {
	return &IngestService{
		registry:   registry,
		relay:      relay,
		tracker:    tracker,
		window:     window,
		authorizer: authorizer,
		idGen:      util.GenerateTradeID,
	}
}

// IngestOpen 开仓事件接入
// 重复的 (master, ticket) 返回 ErrDuplicateEvent，对终端重传无副作用
func (s *IngestService) IngestOpen(ctx context.Context, trade *model.LiveTrade) error {
	acct, ok := s.registry.Get(trade.MasterAccountID)
	if !ok || acct.Role != model.RoleMaster {
		return ErrUnauthorized
	}
	trade.OwnerUserID = acct.OwnerUserID
	if s.authorizer != nil {
		if err := s.authorizer.Authorize(ctx, trade.MasterAccountID, trade.OwnerUserID); err != nil {
			return ErrUnauthorized
		}
	}

	dedupeKey := trade.MasterAccountID + ":" + strconv.FormatInt(trade.Ticket, 10)
	if _, loaded := s.seen.LoadOrStore(dedupeKey, struct{}{}); loaded {
		return ErrDuplicateEvent
	}
	// 多节点场景靠 Redis SETNX 兜底
	if redisDal.Client != nil {
		set, err := redisDal.Client.SetNX(ctx, redisDal.DedupeKey(trade.MasterAccountID, trade.Ticket), "1", 24*time.Hour).Result()
		if err == nil && !set {
			return ErrDuplicateEvent
		}
	}

	id, err := s.idGen()
	if err != nil {
		// 去重痕迹全部回滚，终端重传这张票据还能进来
		s.seen.Delete(dedupeKey)
		if redisDal.Client != nil {
			redisDal.Client.Del(ctx, redisDal.DedupeKey(trade.MasterAccountID, trade.Ticket))
		}
		return err
	}
	trade.TradeID = strconv.FormatUint(id, 10)
	trade.Seq = s.nextSeq(trade.MasterAccountID)
	if trade.Timestamp == 0 {
		trade.Timestamp = time.Now().UnixMilli()
	}

	s.openTickets.Store(dedupeKey, trade)
	s.window.Add(trade)
	journalTrade(trade)
	if pg.GormDB != nil {
		if err := pg.InsertTrade(trade); err != nil {
			hlog.Errorf("[Ingest] trade persist failed, trade_id=%s, err=%v", trade.TradeID, err)
		}
	}

	// 确认前完成入队，确认即代表事件已进入分发通道
	s.relay.Submit(trade)
	hlog.Infof("[Ingest] trade accepted, trade_id=%s, master=%s, ticket=%d, seq=%d", trade.TradeID, trade.MasterAccountID, trade.Ticket, trade.Seq)
	return nil
}

// IngestClose 平仓事件接入
// 按 (master, ticket) 定位原成交，未知票据返回 ErrUnknownTrade
func (s *IngestService) IngestClose(ctx context.Context, masterAccountID string, ticket int64, closePrice, profit float64) error {
	acct, ok := s.registry.Get(masterAccountID)
	if !ok || acct.Role != model.RoleMaster {
		return ErrUnauthorized
	}
	if s.authorizer != nil {
		if err := s.authorizer.Authorize(ctx, masterAccountID, acct.OwnerUserID); err != nil {
			return ErrUnauthorized
		}
	}

	dedupeKey := masterAccountID + ":" + strconv.FormatInt(ticket, 10)
	var trade *model.LiveTrade
	if v, ok := s.openTickets.Load(dedupeKey); ok {
		trade = v.(*model.LiveTrade)
	} else if pg.GormDB != nil {
		// 本地没有（节点重启过），从库里捞
		t, err := pg.GetTradeByMasterTicket(masterAccountID, ticket)
		if err != nil {
			return ErrUnknownTrade
		}
		trade = t
	} else {
		return ErrUnknownTrade
	}
	if trade.Closed {
		return ErrDuplicateEvent
	}

	trade.Closed = true
	trade.ClosePrice = closePrice
	trade.Profit = profit
	journalTrade(trade)
	if pg.GormDB != nil {
		if err := pg.SaveTrade(trade); err != nil {
			hlog.Errorf("[Ingest] trade close persist failed, trade_id=%s, err=%v", trade.TradeID, err)
		}
	}

	s.relay.SubmitClose(trade)
	s.openTickets.Delete(dedupeKey)
	hlog.Infof("[Ingest] trade closed, trade_id=%s, master=%s, ticket=%d, profit=%.2f", trade.TradeID, masterAccountID, ticket, profit)
	return nil
}

// nextSeq master 内单调递增序号，Seq 顺序即处理顺序
func (s *IngestService) nextSeq(master string) int64 {
	v, _ := s.seqs.LoadOrStore(master, new(int64))
	return atomic.AddInt64(v.(*int64), 1)
}

// Kafka 成交流水批量写入
var tradeBatchChan chan *model.LiveTrade
var tradeJournalTopic string
var tradeJournalClose = make(chan struct{})

func InitTradeJournal(topic string) {
	tradeJournalTopic = topic
	tradeBatchChan = make(chan *model.LiveTrade, 10000)
	go batchTradeJournalWriter()
}

// 优雅关闭流水写入协程
func ShutdownTradeJournal() {
	close(tradeJournalClose)
}

func journalTrade(trade *model.LiveTrade) {
	if tradeBatchChan != nil {
		tradeBatchChan <- trade
	}
}

func batchTradeJournalWriter() {
	batch := make([]kafka.Message, 0, 100)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case trade := <-tradeBatchChan:
			msgBytes, err := json.Marshal(trade)
			if err == nil {
				batch = append(batch, kafka.Message{Key: []byte(trade.MasterAccountID), Value: msgBytes})
			}
			if len(batch) >= 100 {
				flushTradeJournalBatch(&batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flushTradeJournalBatch(&batch)
			}
		case <-tradeJournalClose:
			// 收到关闭信号，写完剩余数据再退出
			if len(batch) > 0 {
				flushTradeJournalBatch(&batch)
			}
			return
		}
	}
}

func flushTradeJournalBatch(batch *[]kafka.Message) {
	if len(*batch) == 0 {
		return
	}
	writer := kafkaDal.GetWriter(tradeJournalTopic)
	if writer == nil {
		hlog.Errorf("[Ingest] Kafka writer未初始化，topic=%v", tradeJournalTopic)
		return
	}
	if err := writer.WriteMessages(context.Background(), (*batch)...); err != nil {
		hlog.Errorf("[Ingest] 成交流水写入Kafka失败，topic=%v，err=%v", tradeJournalTopic, err)
	}
	*batch = (*batch)[:0]
}
