package service

import (
	"strings"
	"sync"

	"copytrade-hertz/biz/model"

	"github.com/huandu/skiplist"
)

// 跳表键：最近的成交排最前
type tradeKey struct {
	timestamp int64
	tradeID   string
}

// 跳表新旧比较器
// 实现 skiplist.Comparable 接口
type recencyComparator struct{}

func (recencyComparator) Compare(l, r interface{}) int {
	lk, rk := l.(tradeKey), r.(tradeKey)
	if lk.timestamp > rk.timestamp {
		return -1 // 新成交优先
	} else if lk.timestamp < rk.timestamp {
		return 1
	}
	return strings.Compare(rk.tradeID, lk.tradeID)
}
func (recencyComparator) CalcScore(key interface{}) float64 {
	return -float64(key.(tradeKey).timestamp)
}

type userWindow struct {
	mu   sync.Mutex
	list *skiplist.SkipList
}

// TradeWindow 每个用户一条有界的最近成交窗口
// 超出容量自动淘汰最旧的，RECENT_TRADES 拉取直接走内存
type TradeWindow struct {
	shards  [32]*windowShard
	maxSize int
	onEvict func(tradeID string)
}

type windowShard struct {
	mu      sync.RWMutex
	windows map[string]*userWindow
}

func NewTradeWindow(maxSize int) *TradeWindow {
	if maxSize <= 0 {
		maxSize = 50
	}
	w := &TradeWindow{maxSize: maxSize}
	for i := range w.shards {
		w.shards[i] = &windowShard{windows: make(map[string]*userWindow)}
	}
	return w
}

func (w *TradeWindow) windowFor(userID string) *userWindow {
	shard := w.shards[fnv32(userID)%32]
	shard.mu.RLock()
	uw, ok := shard.windows[userID]
	shard.mu.RUnlock()
	if ok {
		return uw
	}
	shard.mu.Lock()
	uw, ok = shard.windows[userID]
	if !ok {
		uw = &userWindow{list: skiplist.New(recencyComparator{})}
		shard.windows[userID] = uw
	}
	shard.mu.Unlock()
	return uw
}

// OnEvict 注册淘汰回调，别处挂在该成交上的内存态跟着清
// 启动装配时调用一次，之后只读
func (w *TradeWindow) OnEvict(fn func(tradeID string)) {
	w.onEvict = fn
}

// Add 新成交进窗口，满了淘汰最旧
func (w *TradeWindow) Add(trade *model.LiveTrade) {
	uw := w.windowFor(trade.OwnerUserID)
	var evicted []string
	uw.mu.Lock()
	uw.list.Set(tradeKey{timestamp: trade.Timestamp, tradeID: trade.TradeID}, trade)
	for uw.list.Len() > w.maxSize {
		if back := uw.list.RemoveBack(); back != nil {
			evicted = append(evicted, back.Value.(*model.LiveTrade).TradeID)
		}
	}
	uw.mu.Unlock()
	if w.onEvict != nil {
		for _, id := range evicted {
			w.onEvict(id)
		}
	}
}

// Recent 按新到旧返回最多 limit 条
func (w *TradeWindow) Recent(userID string, limit int) []*model.LiveTrade {
	if limit <= 0 || limit > w.maxSize {
		limit = w.maxSize
	}
	uw := w.windowFor(userID)
	uw.mu.Lock()
	defer uw.mu.Unlock()

	trades := make([]*model.LiveTrade, 0, limit)
	for iter := uw.list.Front(); iter != nil && len(trades) < limit; iter = iter.Next() {
		trades = append(trades, iter.Value.(*model.LiveTrade))
	}
	return trades
}
