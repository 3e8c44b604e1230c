package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"copytrade-hertz/biz/model"
)

func trackedTestTrade(n int) (*model.LiveTrade, []*model.SlaveStatus) {
	trade := &model.LiveTrade{
		TradeID:         "t100",
		MasterAccountID: "M1",
		OwnerUserID:     "u1",
		Symbol:          "EURUSD",
		Type:            model.SideBuy,
	}
	statuses := make([]*model.SlaveStatus, 0, n)
	for i := 0; i < n; i++ {
		statuses = append(statuses, &model.SlaveStatus{
			TradeID:        trade.TradeID,
			RelationID:     fmt.Sprintf("r%d", i),
			SlaveAccountID: fmt.Sprintf("S%d", i),
			Status:         model.CopyPending,
		})
	}
	return trade, statuses
}

func TestRecordOutcomeWriteOnce(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "")
	trade, statuses := trackedTestTrade(1)
	tracker.Attach(trade, statuses)

	execMs := int64(120)
	if err := tracker.RecordOutcome("t100", "S0", model.CopySuccess, &execMs, nil, 5001, ""); err != nil {
		t.Fatalf("first outcome: %v", err)
	}
	// 第二次落定必须拒绝，先到先得
	err := tracker.RecordOutcome("t100", "S0", model.CopyFailed, nil, nil, 0, "late failure")
	if !errors.Is(err, ErrAlreadyRecorded) {
		t.Errorf("want ErrAlreadyRecorded, got %v", err)
	}
	if statuses[0].Status != model.CopySuccess {
		t.Errorf("first outcome must stick, got %s", statuses[0].Status)
	}
	if statuses[0].SlaveTicket != 5001 {
		t.Errorf("slave ticket not recorded: %d", statuses[0].SlaveTicket)
	}
}

func TestRecordOutcomeUnknown(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "")
	trade, statuses := trackedTestTrade(1)
	tracker.Attach(trade, statuses)

	if err := tracker.RecordOutcome("nope", "S0", model.CopySuccess, nil, nil, 0, ""); !errors.Is(err, ErrUnknownTrade) {
		t.Errorf("unknown trade: want ErrUnknownTrade, got %v", err)
	}
	if err := tracker.RecordOutcome("t100", "S9", model.CopySuccess, nil, nil, 0, ""); !errors.Is(err, ErrUnknownSlave) {
		t.Errorf("unknown slave: want ErrUnknownSlave, got %v", err)
	}
	if err := tracker.RecordOutcome("t100", "S0", "bogus", nil, nil, 0, ""); err == nil {
		t.Errorf("bogus outcome must be rejected")
	}
}

func TestRecordOutcomeConcurrent(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "")
	trade, statuses := trackedTestTrade(16)
	tracker.Attach(trade, statuses)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := model.CopySuccess
			if i%2 == 1 {
				outcome = model.CopyFailed
			}
			if err := tracker.RecordOutcome("t100", fmt.Sprintf("S%d", i), outcome, nil, nil, int64(i), ""); err != nil {
				t.Errorf("slave S%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	succeeded := tracker.SuccessfulSlaves("t100")
	if len(succeeded) != 8 {
		t.Fatalf("want 8 successful slaves, got %d", len(succeeded))
	}
	for _, sl := range succeeded {
		if sl.RelationID == "" {
			t.Errorf("succeeded slave missing relation id: %+v", sl)
		}
	}
}

func TestRecordOutcomeDuplicateRace(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "")
	trade, statuses := trackedTestTrade(1)
	tracker.Attach(trade, statuses)

	// 同一个 slave 并发落定，恰好一个成功
	var wg sync.WaitGroup
	var okCount, dupCount int32
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tracker.RecordOutcome("t100", "S0", model.CopySuccess, nil, nil, 0, "")
			mu.Lock()
			if err == nil {
				okCount++
			} else if errors.Is(err, ErrAlreadyRecorded) {
				dupCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if okCount != 1 || dupCount != 7 {
		t.Errorf("want exactly one winner, got ok=%d dup=%d", okCount, dupCount)
	}
}

func TestTrackerRelease(t *testing.T) {
	tracker := NewDeliveryTracker(nil, "")
	trade, statuses := trackedTestTrade(1)
	tracker.Attach(trade, statuses)

	tracker.Release("t100")
	if err := tracker.RecordOutcome("t100", "S0", model.CopySuccess, nil, nil, 0, ""); !errors.Is(err, ErrUnknownTrade) {
		t.Errorf("released trade should be unknown, got %v", err)
	}
}
