package service

import (
	"testing"
	"time"

	"copytrade-hertz/biz/model"
)

func TestHeartbeatOnlineAndSnapshot(t *testing.T) {
	r := NewConnectionRegistry(30*time.Second, 10*time.Minute, nil)
	r.Heartbeat("A1", "u1", "Account One", model.RoleMaster, 10000, 10250.5)

	acct, ok := r.Get("A1")
	if !ok {
		t.Fatalf("account not found after heartbeat")
	}
	if acct.Status != model.StatusOnline || acct.Role != model.RoleMaster {
		t.Errorf("unexpected snapshot: %+v", acct)
	}
	if acct.Equity != 10250.5 {
		t.Errorf("equity last-write-wins: want 10250.5, got %v", acct.Equity)
	}
	if !r.IsOnline("A1") {
		t.Errorf("A1 should be online")
	}
}

func TestHeartbeatTimestampMonotonic(t *testing.T) {
	r := NewConnectionRegistry(30*time.Second, 10*time.Minute, nil)
	now := time.Now()
	r.nowFn = func() time.Time { return now }
	r.Heartbeat("A1", "u1", "", model.RoleSlave, 0, 0)
	first, _ := r.Get("A1")

	// 时钟回拨不允许把心跳时间往回写
	r.nowFn = func() time.Time { return now.Add(-5 * time.Second) }
	r.Heartbeat("A1", "u1", "", model.RoleSlave, 100, 100)
	second, _ := r.Get("A1")
	if second.LastHeartbeat != first.LastHeartbeat {
		t.Errorf("heartbeat timestamp went backwards: %d -> %d", first.LastHeartbeat, second.LastHeartbeat)
	}
	if second.Balance != 100 {
		t.Errorf("balance should still update, got %v", second.Balance)
	}
}

func TestSweepOfflineTransition(t *testing.T) {
	r := NewConnectionRegistry(30*time.Second, 10*time.Minute, nil)
	base := time.Now()
	r.nowFn = func() time.Time { return base }
	r.Heartbeat("A1", "u1", "", model.RoleMaster, 0, 0)

	// 未超时，不动
	r.nowFn = func() time.Time { return base.Add(20 * time.Second) }
	r.SweepOnce()
	if !r.IsOnline("A1") {
		t.Fatalf("A1 swept offline too early")
	}

	// 过 offlineAfter 转离线，但还在注册表里
	r.nowFn = func() time.Time { return base.Add(40 * time.Second) }
	r.SweepOnce()
	if r.IsOnline("A1") {
		t.Fatalf("A1 should be offline after 40s without heartbeat")
	}
	if _, ok := r.Get("A1"); !ok {
		t.Errorf("offline account must stay visible before eviction")
	}

	// 过 evictAfter 彻底剔除
	r.nowFn = func() time.Time { return base.Add(11 * time.Minute) }
	r.SweepOnce()
	if _, ok := r.Get("A1"); ok {
		t.Errorf("A1 should be evicted after 11m")
	}
}

func TestHeartbeatRevivesOffline(t *testing.T) {
	r := NewConnectionRegistry(30*time.Second, 10*time.Minute, nil)
	base := time.Now()
	r.nowFn = func() time.Time { return base }
	r.Heartbeat("A1", "u1", "", model.RoleSlave, 0, 0)
	r.Disconnect("A1")
	if r.IsOnline("A1") {
		t.Fatalf("A1 should be offline after disconnect")
	}

	r.nowFn = func() time.Time { return base.Add(time.Second) }
	r.Heartbeat("A1", "u1", "", model.RoleSlave, 0, 0)
	if !r.IsOnline("A1") {
		t.Errorf("heartbeat should bring account back online")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	r := NewConnectionRegistry(30*time.Second, 10*time.Minute, nil)
	r.Heartbeat("A1", "u1", "", model.RoleSlave, 0, 0)
	r.Disconnect("A1")
	r.Disconnect("A1") // 重复下线无副作用
	r.Disconnect("A2") // 未注册账户直接忽略
	if r.IsOnline("A1") {
		t.Errorf("A1 should stay offline")
	}
}

func TestListByUserIsolation(t *testing.T) {
	r := NewConnectionRegistry(30*time.Second, 10*time.Minute, nil)
	r.Heartbeat("A1", "u1", "", model.RoleMaster, 0, 0)
	r.Heartbeat("A2", "u1", "", model.RoleSlave, 0, 0)
	r.Heartbeat("B1", "u2", "", model.RoleMaster, 0, 0)

	mine := r.ListByUser("u1")
	if len(mine) != 2 {
		t.Fatalf("want 2 accounts for u1, got %d", len(mine))
	}
	for _, a := range mine {
		if a.OwnerUserID != "u1" {
			t.Errorf("leaked account from other user: %+v", a)
		}
	}
}
