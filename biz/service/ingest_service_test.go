package service

import (
	"context"
	"errors"
	"testing"

	"copytrade-hertz/biz/model"
)

type denyAuthorizer struct{}

func (denyAuthorizer) Authorize(ctx context.Context, accountID, ownerUserID string) error {
	return errors.New("license expired")
}

func newTestIngest(t *testing.T) (*IngestService, *ConnectionRegistry, *TradeWindow) {
	t.Helper()
	registry := NewConnectionRegistry(0, 0, nil)
	registry.Heartbeat("M1", "u1", "Master One", model.RoleMaster, 10000, 10000)
	registry.Heartbeat("S1", "u1", "Slave One", model.RoleSlave, 5000, 5000)

	relations := NewRelationStore()
	tracker := NewDeliveryTracker(nil, "")
	relay := NewRelayEngine(relations, registry, nil, tracker, nil, &fakeSink{}, nil, 3)
	window := NewTradeWindow(50)
	ingest := NewIngestService(registry, relay, tracker, window, nil)
	return ingest, registry, window
}

func openEvent(ticket int64) *model.LiveTrade {
	return &model.LiveTrade{
		MasterAccountID: "M1",
		Ticket:          ticket,
		Symbol:          "EURUSD",
		Type:            model.SideBuy,
		Volume:          0.5,
		OpenPrice:       1.0850,
	}
}

func TestIngestOpenDuplicateTicket(t *testing.T) {
	ingest, _, _ := newTestIngest(t)
	ctx := context.Background()

	if err := ingest.IngestOpen(ctx, openEvent(1001)); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	// 终端重传同一张票据
	err := ingest.IngestOpen(ctx, openEvent(1001))
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("want ErrDuplicateEvent, got %v", err)
	}
}

func TestIngestOpenUnauthorized(t *testing.T) {
	ingest, _, _ := newTestIngest(t)
	ctx := context.Background()

	// 未注册账户
	ev := openEvent(1001)
	ev.MasterAccountID = "ghost"
	if err := ingest.IngestOpen(ctx, ev); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unregistered master: want ErrUnauthorized, got %v", err)
	}

	// slave 角色不能发主单
	ev = openEvent(1002)
	ev.MasterAccountID = "S1"
	if err := ingest.IngestOpen(ctx, ev); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("slave role: want ErrUnauthorized, got %v", err)
	}
}

func TestIngestOpenLicenseDenied(t *testing.T) {
	registry := NewConnectionRegistry(0, 0, nil)
	registry.Heartbeat("M1", "u1", "", model.RoleMaster, 0, 0)
	relay := NewRelayEngine(NewRelationStore(), registry, nil, NewDeliveryTracker(nil, ""), nil, &fakeSink{}, nil, 3)
	ingest := NewIngestService(registry, relay, nil, NewTradeWindow(50), denyAuthorizer{})

	if err := ingest.IngestOpen(context.Background(), openEvent(1001)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("denied license: want ErrUnauthorized, got %v", err)
	}
}

func TestIngestOpenSeqMonotonic(t *testing.T) {
	ingest, _, window := newTestIngest(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		ev := openEvent(2000 + i)
		if err := ingest.IngestOpen(ctx, ev); err != nil {
			t.Fatalf("ingest #%d: %v", i, err)
		}
		if ev.Seq != i {
			t.Errorf("seq: want %d, got %d", i, ev.Seq)
		}
		if ev.TradeID == "" {
			t.Errorf("trade id not assigned")
		}
		if ev.OwnerUserID != "u1" {
			t.Errorf("owner should come from registry, got %q", ev.OwnerUserID)
		}
	}

	recent := window.Recent("u1", 0)
	if len(recent) != 3 {
		t.Errorf("window should hold 3 trades, got %d", len(recent))
	}
}

func TestIngestCloseFlow(t *testing.T) {
	ingest, _, _ := newTestIngest(t)
	ctx := context.Background()

	// 未知票据
	if err := ingest.IngestClose(ctx, "M1", 9999, 1.08, -10); !errors.Is(err, ErrUnknownTrade) {
		t.Errorf("unknown ticket: want ErrUnknownTrade, got %v", err)
	}

	ev := openEvent(3001)
	if err := ingest.IngestOpen(ctx, ev); err != nil {
		t.Fatalf("ingest open: %v", err)
	}
	if err := ingest.IngestClose(ctx, "M1", 3001, 1.0900, 25.0); err != nil {
		t.Fatalf("ingest close: %v", err)
	}
	if !ev.Closed || ev.ClosePrice != 1.0900 || ev.Profit != 25.0 {
		t.Errorf("close fields not applied: %+v", ev)
	}

	// 重复平仓必须报错
	if err := ingest.IngestClose(ctx, "M1", 3001, 1.0900, 25.0); err == nil {
		t.Errorf("second close must fail")
	}
}

// 发号失败必须把去重痕迹回滚干净，终端重传同一票据还能进来
func TestIngestOpenIDFailureAllowsRetry(t *testing.T) {
	ingest, _, _ := newTestIngest(t)
	ctx := context.Background()

	ingest.idGen = func() (uint64, error) { return 0, errors.New("id generator down") }
	err := ingest.IngestOpen(ctx, openEvent(3001))
	if err == nil || errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("id failure must surface, got %v", err)
	}

	ingest.idGen = func() (uint64, error) { return 42, nil }
	if err := ingest.IngestOpen(ctx, openEvent(3001)); err != nil {
		t.Errorf("retry after id failure must be accepted, got %v", err)
	}
}
