package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"copytrade-hertz/biz/model"
)

type fakeSink struct {
	mu      sync.Mutex
	emitted []*model.CopyInstruction
}

func (f *fakeSink) Emit(ctx context.Context, instr *model.CopyInstruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, instr)
	return nil
}

func newTestTrade() *model.LiveTrade {
	return &model.LiveTrade{
		TradeID:         "t1",
		MasterAccountID: "M1",
		Ticket:          1001,
		OwnerUserID:     "u1",
		Symbol:          "EURUSD",
		Type:            model.SideSell,
		Volume:          1.2,
		OpenPrice:       1.0850,
		StopLoss:        1.0900,
		TakeProfit:      1.0750,
		Timestamp:       1700000000000,
	}
}

func relationOf(id, slave, mode string) model.CopyRelation {
	return model.CopyRelation{
		RelationID:      id,
		SourceAccountID: "M1",
		TargetAccountID: slave,
		OwnerUserID:     "u1",
		IsActive:        true,
		VolumeMode:      mode,
		CopyRatio:       1.0,
		SlTpMode:        model.SlTpModeCopy,
	}
}

func TestBuildInstructionsSymbolFilter(t *testing.T) {
	trade := newTestTrade()
	rel := relationOf("r1", "S1", model.VolumeModeMultiply)
	rel.AllowedSymbols = "GBPUSD,USDJPY"
	instrs, statuses := BuildInstructions(trade, []RelationSnapshot{{Relation: rel, SlaveOnline: true, Entitled: true}})
	if len(instrs) != 0 || len(statuses) != 0 {
		t.Errorf("symbol filter should drop relation, got %d instructions", len(instrs))
	}

	rel.AllowedSymbols = "EURUSD,GBPUSD"
	instrs, _ = BuildInstructions(trade, []RelationSnapshot{{Relation: rel, SlaveOnline: true, Entitled: true}})
	if len(instrs) != 1 {
		t.Fatalf("whitelisted symbol should pass, got %d instructions", len(instrs))
	}
}

func TestBuildInstructionsDirectionFilter(t *testing.T) {
	trade := newTestTrade() // SELL
	rel := relationOf("r1", "S2", model.VolumeModeMultiply)
	rel.AllowedSides = model.SideBuy
	instrs, statuses := BuildInstructions(trade, []RelationSnapshot{{Relation: rel, SlaveOnline: true, Entitled: true}})
	if len(instrs) != 0 || len(statuses) != 0 {
		t.Errorf("BUY-only relation must ignore SELL trade entirely")
	}
}

func TestBuildInstructionsInactiveAndUnentitled(t *testing.T) {
	trade := newTestTrade()
	inactive := relationOf("r1", "S1", model.VolumeModeMultiply)
	inactive.IsActive = false
	unentitled := relationOf("r2", "S2", model.VolumeModeMultiply)

	instrs, _ := BuildInstructions(trade, []RelationSnapshot{
		{Relation: inactive, SlaveOnline: true, Entitled: true},
		{Relation: unentitled, SlaveOnline: true, Entitled: false},
	})
	if len(instrs) != 0 {
		t.Errorf("inactive/unentitled relations should be skipped, got %d", len(instrs))
	}
}

func TestTransformVolumeModes(t *testing.T) {
	rel := relationOf("r1", "S1", model.VolumeModeMultiply)
	rel.CopyRatio = 1.0
	rel.MaxLotSize = 1.0
	// 1.2 * 1.0 封顶到 1.0
	if v := transformVolume(1.2, &rel, 0, 0); v != 1.0 {
		t.Errorf("multiply with cap: want 1.0, got %v", v)
	}

	rel.VolumeMode = model.VolumeModeFixed
	rel.FixedVolume = 0.30
	if v := transformVolume(1.2, &rel, 0, 0); v != 0.30 {
		t.Errorf("fixed: want 0.30, got %v", v)
	}

	rel.VolumeMode = model.VolumeModeProportional
	rel.MaxLotSize = 0
	// slave 净值 5000，master 净值 10000 → 1.2 * 0.5 = 0.6
	if v := transformVolume(1.2, &rel, 5000, 10000); v != 0.6 {
		t.Errorf("proportional: want 0.6, got %v", v)
	}
	// master 净值缺失不产生指令
	if v := transformVolume(1.2, &rel, 5000, 0); v != 0 {
		t.Errorf("proportional with zero master equity: want 0, got %v", v)
	}

	// 换算结果低于最小手数直接跳过
	rel.VolumeMode = model.VolumeModeMultiply
	rel.CopyRatio = 0.001
	if v := transformVolume(1.2, &rel, 0, 0); v != 0 {
		t.Errorf("below min lot: want 0, got %v", v)
	}
}

func TestTransformSlTp(t *testing.T) {
	trade := newTestTrade()
	rel := relationOf("r1", "S1", model.VolumeModeMultiply)

	rel.SlTpMode = model.SlTpModeNone
	sl, tp := transformSlTp(trade, &rel)
	if sl != 0 || tp != 0 {
		t.Errorf("none mode: want 0/0, got %v/%v", sl, tp)
	}

	rel.SlTpMode = model.SlTpModeCopy
	sl, tp = transformSlTp(trade, &rel)
	if sl != trade.StopLoss || tp != trade.TakeProfit {
		t.Errorf("copy mode: want %v/%v, got %v/%v", trade.StopLoss, trade.TakeProfit, sl, tp)
	}

	rel.SlTpMode = model.SlTpModeMultiply
	rel.SlTpMultiplier = 2.0
	sl, tp = transformSlTp(trade, &rel)
	// SELL: SL 在开仓价上方 0.005 → 放大到 0.010
	if math.Abs(sl-1.0950) > 1e-9 {
		t.Errorf("multiply mode sl: want 1.0950, got %v", sl)
	}
	if math.Abs(tp-1.0650) > 1e-9 {
		t.Errorf("multiply mode tp: want 1.0650, got %v", tp)
	}

	rel.SlTpMode = model.SlTpModeFixedPips
	rel.SlFixedPips = 50
	rel.TpFixedPips = 100
	sl, tp = transformSlTp(trade, &rel)
	// SELL + 50 pips = 1.0850 + 0.0050
	if math.Abs(sl-1.0900) > 1e-9 {
		t.Errorf("fixed pips sl: want 1.0900, got %v", sl)
	}
	if math.Abs(tp-1.0750) > 1e-9 {
		t.Errorf("fixed pips tp: want 1.0750, got %v", tp)
	}
}

func TestPipSize(t *testing.T) {
	if pipSize("USDJPY") != 0.01 {
		t.Errorf("JPY pair pip should be 0.01")
	}
	if pipSize("EURUSD") != 0.0001 {
		t.Errorf("non-JPY pair pip should be 0.0001")
	}
}

func TestBuildInstructionsDailyCaps(t *testing.T) {
	trade := newTestTrade()
	rel := relationOf("r1", "S1", model.VolumeModeMultiply)
	rel.MaxDailyTrades = 3
	instrs, _ := BuildInstructions(trade, []RelationSnapshot{{Relation: rel, SlaveOnline: true, Entitled: true, DailyTrades: 3}})
	if len(instrs) != 0 {
		t.Errorf("daily trade cap reached, relation should be skipped")
	}

	rel.MaxDailyTrades = 0
	rel.MaxDailyLoss = 100
	instrs, _ = BuildInstructions(trade, []RelationSnapshot{{Relation: rel, SlaveOnline: true, Entitled: true, DailyLoss: 150}})
	if len(instrs) != 0 {
		t.Errorf("daily loss cap reached, relation should be skipped")
	}
}

func TestBuildInstructionsDeterministic(t *testing.T) {
	trade := newTestTrade()
	snaps := []RelationSnapshot{
		{Relation: relationOf("r2", "S2", model.VolumeModeMultiply), SlaveOnline: true, Entitled: true},
		{Relation: relationOf("r1", "S1", model.VolumeModeMultiply), SlaveOnline: true, Entitled: true},
	}
	a, _ := BuildInstructions(trade, snaps)
	// 同样输入反序再来一遍
	b, _ := BuildInstructions(trade, []RelationSnapshot{snaps[1], snaps[0]})
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("want 2 instructions each, got %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i].InstructionID != b[i].InstructionID || a[i].SlaveAccountID != b[i].SlaveAccountID {
			t.Errorf("instruction order must not depend on snapshot order")
		}
	}
}

// 混合场景：S1 离线 copy_100 全量跟随 SELL，S2 只做 BUY
func TestProcessOpenScenario(t *testing.T) {
	registry := NewConnectionRegistry(0, 0, nil)
	registry.Heartbeat("M1", "u1", "Master One", model.RoleMaster, 10000, 10000)
	registry.Heartbeat("S1", "u1", "Slave One", model.RoleSlave, 5000, 5000)
	registry.Disconnect("S1") // S1 离线

	relations := NewRelationStore()
	r1 := relationOf("r1", "S1", model.VolumeModeMultiply)
	r1.SlTpMode = model.SlTpModeCopy
	r2 := relationOf("r2", "S2", model.VolumeModeMultiply)
	r2.CopyRatio = 0.5
	r2.AllowedSides = model.SideBuy
	if err := relations.Create(&r1); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	if err := relations.Create(&r2); err != nil {
		t.Fatalf("create r2: %v", err)
	}

	tracker := NewDeliveryTracker(nil, "")
	sink := &fakeSink{}
	engine := NewRelayEngine(relations, registry, nil, tracker, nil, sink, nil, 3)

	trade := newTestTrade() // SELL
	engine.processOpen(trade)

	// r2 方向不符，不生成任何记录；r1 离线也要挂 pending
	if len(trade.SlaveStatuses) != 1 {
		t.Fatalf("want 1 slave status, got %d", len(trade.SlaveStatuses))
	}
	st := trade.SlaveStatuses[0]
	if st.SlaveAccountID != "S1" || st.Status != model.CopyPending {
		t.Errorf("S1 should be pending, got %+v", st)
	}
	// S1 离线，指令不走 sink
	if len(sink.emitted) != 0 {
		t.Errorf("offline slave instruction must not be emitted, got %d", len(sink.emitted))
	}
}

func TestProcessCloseOnlyRoutesSuccessfulSlaves(t *testing.T) {
	registry := NewConnectionRegistry(0, 0, nil)
	registry.Heartbeat("M1", "u1", "", model.RoleMaster, 0, 0)
	registry.Heartbeat("S1", "u1", "", model.RoleSlave, 0, 0)
	registry.Heartbeat("S2", "u1", "", model.RoleSlave, 0, 0)

	relations := NewRelationStore()
	r1 := relationOf("r1", "S1", model.VolumeModeMultiply)
	r2 := relationOf("r2", "S2", model.VolumeModeMultiply)
	if err := relations.Create(&r1); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	if err := relations.Create(&r2); err != nil {
		t.Fatalf("create r2: %v", err)
	}

	tracker := NewDeliveryTracker(nil, "")
	sink := &fakeSink{}
	engine := NewRelayEngine(relations, registry, nil, tracker, nil, sink, nil, 3)

	trade := newTestTrade()
	engine.processOpen(trade)
	if len(sink.emitted) != 2 {
		t.Fatalf("want 2 open instructions, got %d", len(sink.emitted))
	}

	// 只有 S1 回报成功
	if err := tracker.RecordOutcome("t1", "S1", model.CopySuccess, nil, nil, 2001, ""); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	sink.emitted = nil

	trade.Closed = true
	trade.ClosePrice = 1.0800
	engine.processClose(trade)

	if len(sink.emitted) != 1 {
		t.Fatalf("close should target only successful slaves, got %d instructions", len(sink.emitted))
	}
	instr := sink.emitted[0]
	if instr.Action != model.InstructionClose || instr.SlaveAccountID != "S1" || instr.SlaveTicket != 2001 {
		t.Errorf("close instruction mismatch: %+v", instr)
	}
}
