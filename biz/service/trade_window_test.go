package service

import (
	"errors"
	"fmt"
	"testing"

	"copytrade-hertz/biz/model"
)

func windowTrade(userID string, n int, ts int64) *model.LiveTrade {
	return &model.LiveTrade{
		TradeID:     fmt.Sprintf("t%d", n),
		OwnerUserID: userID,
		Symbol:      "EURUSD",
		Timestamp:   ts,
	}
}

func TestWindowNewestFirst(t *testing.T) {
	w := NewTradeWindow(50)
	w.Add(windowTrade("u1", 1, 1000))
	w.Add(windowTrade("u1", 3, 3000))
	w.Add(windowTrade("u1", 2, 2000))

	recent := w.Recent("u1", 0)
	if len(recent) != 3 {
		t.Fatalf("want 3 trades, got %d", len(recent))
	}
	for i, want := range []string{"t3", "t2", "t1"} {
		if recent[i].TradeID != want {
			t.Errorf("pos %d: want %s, got %s", i, want, recent[i].TradeID)
		}
	}
}

func TestWindowEviction(t *testing.T) {
	w := NewTradeWindow(5)
	for i := 1; i <= 8; i++ {
		w.Add(windowTrade("u1", i, int64(i*1000)))
	}
	recent := w.Recent("u1", 0)
	if len(recent) != 5 {
		t.Fatalf("window should cap at 5, got %d", len(recent))
	}
	// 留下的必须是最新的 5 条
	if recent[0].TradeID != "t8" || recent[4].TradeID != "t4" {
		t.Errorf("oldest trades should be evicted, got %s..%s", recent[0].TradeID, recent[4].TradeID)
	}
}

func TestWindowLimitClamp(t *testing.T) {
	w := NewTradeWindow(5)
	for i := 1; i <= 5; i++ {
		w.Add(windowTrade("u1", i, int64(i*1000)))
	}
	if got := len(w.Recent("u1", 2)); got != 2 {
		t.Errorf("limit 2: got %d", got)
	}
	if got := len(w.Recent("u1", 100)); got != 5 {
		t.Errorf("limit above cap should clamp to window size, got %d", got)
	}
	if got := len(w.Recent("u1", -1)); got != 5 {
		t.Errorf("negative limit should fall back to window size, got %d", got)
	}
}

func TestWindowUserIsolation(t *testing.T) {
	w := NewTradeWindow(50)
	w.Add(windowTrade("u1", 1, 1000))
	w.Add(windowTrade("u2", 2, 2000))

	if got := w.Recent("u1", 0); len(got) != 1 || got[0].TradeID != "t1" {
		t.Errorf("u1 window polluted: %+v", got)
	}
	if got := w.Recent("u3", 0); len(got) != 0 {
		t.Errorf("unknown user should get empty window, got %d", len(got))
	}
}

func TestWindowEvictionCallback(t *testing.T) {
	w := NewTradeWindow(2)
	var evicted []string
	w.OnEvict(func(tradeID string) { evicted = append(evicted, tradeID) })

	w.Add(windowTrade("u1", 1, 1000))
	w.Add(windowTrade("u1", 2, 2000))
	w.Add(windowTrade("u1", 3, 3000))

	if len(evicted) != 1 || evicted[0] != "t1" {
		t.Errorf("oldest trade must be reported evicted: %v", evicted)
	}
}

// 成交出窗口后追踪条目跟着释放，迟到的回报按未知处理
func TestWindowEvictionReleasesTracking(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "")
	w := NewTradeWindow(1)
	w.OnEvict(tracker.Release)

	t1 := windowTrade("u1", 1, 1000)
	tracker.Attach(t1, []*model.SlaveStatus{{TradeID: t1.TradeID, SlaveAccountID: "S1", Status: model.CopyPending}})
	w.Add(t1)

	t2 := windowTrade("u1", 2, 2000)
	tracker.Attach(t2, []*model.SlaveStatus{{TradeID: t2.TradeID, SlaveAccountID: "S1", Status: model.CopyPending}})
	w.Add(t2)

	if err := tracker.RecordOutcome(t1.TradeID, "S1", model.CopySuccess, nil, nil, 1, ""); !errors.Is(err, ErrUnknownTrade) {
		t.Errorf("evicted trade: want ErrUnknownTrade, got %v", err)
	}
	if err := tracker.RecordOutcome(t2.TradeID, "S1", model.CopySuccess, nil, nil, 1, ""); err != nil {
		t.Errorf("in-window trade must still settle: %v", err)
	}
}
