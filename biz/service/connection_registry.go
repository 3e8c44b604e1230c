package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"copytrade-hertz/biz/dal/redis"
	"copytrade-hertz/biz/engine"
	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

const accountShardNum = 32

type accountShard struct {
	mu       sync.RWMutex
	accounts map[string]*model.ConnectedAccount
}

// ConnectionRegistry 终端在线注册表
// 账户状态只在这里变更，其他模块通过快照读取
type ConnectionRegistry struct {
	shards [accountShardNum]*accountShard

	offlineAfter time.Duration
	evictAfter   time.Duration
	broadcaster  engine.Broadcaster

	nowFn func() time.Time // 测试注入

	stopCh chan struct{}
}

func NewConnectionRegistry(offlineAfter, evictAfter time.Duration, broadcaster engine.Broadcaster) *ConnectionRegistry {
	r := &ConnectionRegistry{
		offlineAfter: offlineAfter,
		evictAfter:   evictAfter,
		broadcaster:  broadcaster,
		nowFn:        time.Now,
		stopCh:       make(chan struct{}),
	}
	for i := 0; i < accountShardNum; i++ {
		r.shards[i] = &accountShard{accounts: make(map[string]*model.ConnectedAccount)}
	}
	return r
}

func (r *ConnectionRegistry) shard(accountID string) *accountShard {
	return r.shards[fnv32(accountID)%accountShardNum]
}

func fnv32(key string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h
}

// Heartbeat 心跳上报，幂等：余额净值 last-write-wins，时间戳只增不减
func (r *ConnectionRegistry) Heartbeat(accountID, ownerUserID, accountName, role string, balance, equity float64) {
	now := r.nowFn().UnixMilli()
	sh := r.shard(accountID)

	sh.mu.Lock()
	acct, ok := sh.accounts[accountID]
	cameOnline := false
	if !ok {
		acct = &model.ConnectedAccount{
			AccountID:   accountID,
			OwnerUserID: ownerUserID,
			AccountName: accountName,
			Role:        role,
		}
		sh.accounts[accountID] = acct
		cameOnline = true
	} else if acct.Status == model.StatusOffline {
		cameOnline = true
	}
	acct.Role = role
	acct.Status = model.StatusOnline
	acct.Balance = balance
	acct.Equity = equity
	if now > acct.LastHeartbeat {
		acct.LastHeartbeat = now
	}
	snapshot := *acct
	sh.mu.Unlock()

	if cameOnline {
		hlog.Infof("[Registry] account online, account_id=%s, role=%s", accountID, role)
		r.publish(snapshot.OwnerUserID, model.NewAccountConnectedEvent(snapshot))
	}
	r.refreshUserSnapshot(snapshot.OwnerUserID)
}

// Disconnect 终端主动下线
func (r *ConnectionRegistry) Disconnect(accountID string) {
	sh := r.shard(accountID)
	sh.mu.Lock()
	acct, ok := sh.accounts[accountID]
	var userID string
	if ok && acct.Status == model.StatusOnline {
		acct.Status = model.StatusOffline
		userID = acct.OwnerUserID
	}
	sh.mu.Unlock()

	if userID != "" {
		hlog.Infof("[Registry] account disconnected, account_id=%s", accountID)
		r.publish(userID, model.NewAccountDisconnectedEvent(userID, accountID))
		r.refreshUserSnapshot(userID)
	}
}

// IsOnline 账户是否在线
func (r *ConnectionRegistry) IsOnline(accountID string) bool {
	sh := r.shard(accountID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	acct, ok := sh.accounts[accountID]
	return ok && acct.Status == model.StatusOnline
}

// Get 账户快照副本
func (r *ConnectionRegistry) Get(accountID string) (model.ConnectedAccount, bool) {
	sh := r.shard(accountID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	acct, ok := sh.accounts[accountID]
	if !ok {
		return model.ConnectedAccount{}, false
	}
	return *acct, true
}

// OwnerOf 账户归属，掉线未逐出的也能查到
func (r *ConnectionRegistry) OwnerOf(accountID string) (string, bool) {
	acct, ok := r.Get(accountID)
	if !ok {
		return "", false
	}
	return acct.OwnerUserID, true
}

// ListByUser 某用户全部账户快照
func (r *ConnectionRegistry) ListByUser(userID string) []model.ConnectedAccount {
	var res []model.ConnectedAccount
	for i := 0; i < accountShardNum; i++ {
		sh := r.shards[i]
		sh.mu.RLock()
		for _, acct := range sh.accounts {
			if acct.OwnerUserID == userID {
				res = append(res, *acct)
			}
		}
		sh.mu.RUnlock()
	}
	return res
}

// StartSweeper 启动判活巡检
func (r *ConnectionRegistry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.SweepOnce()
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *ConnectionRegistry) StopSweeper() {
	close(r.stopCh)
}

// SweepOnce 单轮巡检：超时转离线，长期无心跳剔除
func (r *ConnectionRegistry) SweepOnce() {
	now := r.nowFn().UnixMilli()
	offlineBefore := now - r.offlineAfter.Milliseconds()
	evictBefore := now - r.evictAfter.Milliseconds()

	type droppedAcct struct {
		userID    string
		accountID string
	}
	var dropped []droppedAcct
	touched := make(map[string]struct{})

	for i := 0; i < accountShardNum; i++ {
		sh := r.shards[i]
		sh.mu.Lock()
		for id, acct := range sh.accounts {
			if acct.LastHeartbeat < evictBefore {
				delete(sh.accounts, id)
				if acct.Status == model.StatusOnline {
					dropped = append(dropped, droppedAcct{acct.OwnerUserID, id})
				}
				touched[acct.OwnerUserID] = struct{}{}
				continue
			}
			if acct.Status == model.StatusOnline && acct.LastHeartbeat < offlineBefore {
				acct.Status = model.StatusOffline
				dropped = append(dropped, droppedAcct{acct.OwnerUserID, id})
				touched[acct.OwnerUserID] = struct{}{}
			}
		}
		sh.mu.Unlock()
	}

	for _, d := range dropped {
		hlog.Infof("[Registry] heartbeat timeout, account_id=%s", d.accountID)
		r.publish(d.userID, model.NewAccountDisconnectedEvent(d.userID, d.accountID))
	}
	for userID := range touched {
		r.refreshUserSnapshot(userID)
	}
}

func (r *ConnectionRegistry) publish(userID string, evt model.ServerEvent) {
	if r.broadcaster == nil {
		return
	}
	msg, err := json.Marshal(evt)
	if err != nil {
		return
	}
	r.broadcaster(userID, msg)
}

// refreshUserSnapshot 把该用户的在线账户快照写进 Redis，轮询兜底接口直读
func (r *ConnectionRegistry) refreshUserSnapshot(userID string) {
	if redis.Client == nil {
		return
	}
	accounts := r.ListByUser(userID)
	data, err := json.Marshal(accounts)
	if err != nil {
		return
	}
	key := redis.KeyAccountsPrefix + userID
	if err := redis.Client.Set(context.Background(), key, data, 24*time.Hour).Err(); err != nil {
		hlog.Warnf("[Registry] snapshot cache write failed, user=%s, err=%v", userID, err)
	}
}
