package service

import (
	"errors"
	"testing"
	"time"

	"copytrade-hertz/biz/model"
)

func validRelation(id string) *model.CopyRelation {
	return &model.CopyRelation{
		RelationID:      id,
		SourceAccountID: "M1",
		TargetAccountID: "S1",
		OwnerUserID:     "u1",
		IsActive:        true,
		VolumeMode:      model.VolumeModeMultiply,
		CopyRatio:       1.0,
		SlTpMode:        model.SlTpModeCopy,
	}
}

func TestValidateRelation(t *testing.T) {
	if err := ValidateRelation(validRelation("r1")); err != nil {
		t.Fatalf("valid relation rejected: %v", err)
	}

	bad := validRelation("r1")
	bad.VolumeMode = "percentage"
	if err := ValidateRelation(bad); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("bad volume_mode: want ErrRelationInvalid, got %v", err)
	}

	bad = validRelation("r1")
	bad.SlTpMode = "mirror"
	if err := ValidateRelation(bad); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("bad sl_tp_mode: want ErrRelationInvalid, got %v", err)
	}

	bad = validRelation("r1")
	bad.AllowedSides = "BUY,LONG"
	if err := ValidateRelation(bad); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("bad side: want ErrRelationInvalid, got %v", err)
	}

	bad = validRelation("r1")
	bad.TargetAccountID = bad.SourceAccountID
	if err := ValidateRelation(bad); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("self copy: want ErrRelationInvalid, got %v", err)
	}

	bad = validRelation("r1")
	bad.OwnerUserID = ""
	if err := ValidateRelation(bad); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("missing owner: want ErrRelationInvalid, got %v", err)
	}
}

func TestRelationStoreCRUD(t *testing.T) {
	s := NewRelationStore()
	r := validRelation("r1")
	if err := s.Create(r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.CreatedAt == 0 || r.UpdatedAt == 0 {
		t.Errorf("timestamps not set on create")
	}

	got, ok := s.Get("r1")
	if !ok || got.TargetAccountID != "S1" {
		t.Fatalf("get after create: ok=%v rel=%+v", ok, got)
	}

	// 索引返回的是副本，改它不影响存储
	got.IsActive = false
	if again, _ := s.Get("r1"); !again.IsActive {
		t.Errorf("Get must return a copy")
	}

	got.IsActive = false
	if err := s.Update(&got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if active := s.ActiveRelationsForMaster("M1"); len(active) != 0 {
		t.Errorf("deactivated relation still listed as active: %d", len(active))
	}

	if err := s.Delete("r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Get("r1"); ok {
		t.Errorf("relation still present after delete")
	}
	if err := s.Delete("r1"); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("double delete: want ErrRelationInvalid, got %v", err)
	}
}

func TestRelationStoreMasterReindex(t *testing.T) {
	s := NewRelationStore()
	r := validRelation("r1")
	if err := s.Create(r); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 换 master 后旧索引必须摘除
	moved := *r
	moved.SourceAccountID = "M2"
	if err := s.Update(&moved); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rels := s.ActiveRelationsForMaster("M1"); len(rels) != 0 {
		t.Errorf("old master index not cleaned: %d", len(rels))
	}
	if rels := s.ActiveRelationsForMaster("M2"); len(rels) != 1 {
		t.Errorf("new master index missing: %d", len(rels))
	}
}

func TestRelationStoreListByOwner(t *testing.T) {
	s := NewRelationStore()
	r1 := validRelation("r1")
	r2 := validRelation("r2")
	r2.TargetAccountID = "S2"
	r3 := validRelation("r3")
	r3.OwnerUserID = "u2"
	for _, r := range []*model.CopyRelation{r1, r2, r3} {
		if err := s.Create(r); err != nil {
			t.Fatalf("create %s: %v", r.RelationID, err)
		}
	}
	if mine := s.ListByOwner("u1"); len(mine) != 2 {
		t.Errorf("want 2 relations for u1, got %d", len(mine))
	}
}

func TestDailyCountersRollOver(t *testing.T) {
	s := NewRelationStore()
	base := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return base }

	s.IncDailyTrades("r1")
	s.IncDailyTrades("r1")
	s.AddDailyLoss("r1", 40)
	s.AddDailyLoss("r1", -5) // 非正数忽略

	trades, loss := s.DailyStats("r1")
	if trades != 2 || loss != 40 {
		t.Errorf("daily stats: want 2/40, got %d/%v", trades, loss)
	}

	// 过 UTC 午夜清零
	s.nowFn = func() time.Time { return base.Add(20 * time.Minute) }
	trades, loss = s.DailyStats("r1")
	if trades != 0 || loss != 0 {
		t.Errorf("counters should reset at UTC midnight, got %d/%v", trades, loss)
	}
}

// 建关系时两端账户都必须归属本人，跨用户只能走信号源订阅
func TestRelationOwnershipEnforced(t *testing.T) {
	registry := NewConnectionRegistry(0, 0, nil)
	registry.Heartbeat("M1", "u1", "", model.RoleMaster, 10000, 10000)
	registry.Heartbeat("S1", "u1", "", model.RoleSlave, 5000, 5000)
	registry.Heartbeat("X9", "u2", "", model.RoleSlave, 5000, 5000)

	s := NewRelationStore()
	s.SetOwnership(registry)

	if err := s.Create(validRelation("r-own")); err != nil {
		t.Fatalf("own accounts rejected: %v", err)
	}

	foreign := validRelation("r-foreign")
	foreign.TargetAccountID = "X9"
	if err := s.Create(foreign); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("foreign target: want ErrRelationInvalid, got %v", err)
	}

	unknown := validRelation("r-unknown")
	unknown.TargetAccountID = "GHOST"
	if err := s.Create(unknown); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("unknown target: want ErrRelationInvalid, got %v", err)
	}

	hijack := validRelation("r-own")
	hijack.OwnerUserID = "u2"
	if err := s.Update(hijack); !errors.Is(err, ErrRelationInvalid) {
		t.Errorf("update with foreign owner: want ErrRelationInvalid, got %v", err)
	}
}
