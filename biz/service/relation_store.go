package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"copytrade-hertz/biz/dal/pg"
	"copytrade-hertz/biz/dal/redis"
	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"gopkg.in/validator.v2"
)

const relationShardNum = 32

type relationShard struct {
	mu sync.RWMutex
	// masterAccountID -> relationID -> relation
	byMaster map[string]map[string]*model.CopyRelation
}

// AccountOwnership 账户归属解析，建/改关系时校验两端账户
type AccountOwnership interface {
	OwnerOf(accountID string) (string, bool)
}

// RelationStore 跟单关系存储
// 写走 GORM 落库，读走 master 维度的内存索引，热路径 O(k)
type RelationStore struct {
	shards [relationShardNum]*relationShard

	ownership AccountOwnership

	idMu     sync.RWMutex
	idToMaster map[string]string // relationID -> masterAccountID

	counterMu sync.Mutex
	counters  map[string]*dailyCounter // relationID -> 当日风控计数

	nowFn func() time.Time
}

type dailyCounter struct {
	day    string
	trades int
	loss   float64
}

func NewRelationStore() *RelationStore {
	s := &RelationStore{
		idToMaster: make(map[string]string),
		counters:   make(map[string]*dailyCounter),
		nowFn:      time.Now,
	}
	for i := 0; i < relationShardNum; i++ {
		s.shards[i] = &relationShard{byMaster: make(map[string]map[string]*model.CopyRelation)}
	}
	return s
}

// LoadFromDB 启动时重建内存索引
func (s *RelationStore) LoadFromDB() error {
	if pg.GormDB == nil {
		return nil
	}
	relations, err := pg.ListAllRelations()
	if err != nil {
		return err
	}
	for i := range relations {
		r := relations[i]
		s.indexPut(&r)
	}
	hlog.Infof("[RelationStore] loaded %d relations", len(relations))
	return nil
}

func (s *RelationStore) shard(masterAccountID string) *relationShard {
	return s.shards[fnv32(masterAccountID)%relationShardNum]
}

// SetOwnership 注入账户归属解析，启动装配时调用一次
func (s *RelationStore) SetOwnership(o AccountOwnership) {
	s.ownership = o
}

// 两端账户都得归属 OwnerUserID 本人
// 跨用户跟单只能走信号源订阅那条路
func (s *RelationStore) checkOwnership(r *model.CopyRelation) error {
	if s.ownership == nil {
		return nil
	}
	for _, acct := range []string{r.SourceAccountID, r.TargetAccountID} {
		owner, ok := s.ownership.OwnerOf(acct)
		if !ok {
			return fmt.Errorf("%w: account %s unknown", ErrRelationInvalid, acct)
		}
		if owner != r.OwnerUserID {
			return fmt.Errorf("%w: account %s not owned by %s", ErrRelationInvalid, acct, r.OwnerUserID)
		}
	}
	return nil
}

// Create 新建关系，校验失败返回 ErrRelationInvalid
func (s *RelationStore) Create(r *model.CopyRelation) error {
	if err := ValidateRelation(r); err != nil {
		return err
	}
	if err := s.checkOwnership(r); err != nil {
		return err
	}
	now := s.nowFn().UnixMilli()
	r.CreatedAt = now
	r.UpdatedAt = now
	if pg.GormDB != nil {
		if err := pg.CreateRelation(r); err != nil {
			return err
		}
	}
	s.indexPut(r)
	s.invalidateCache(r.SourceAccountID)
	return nil
}

// Update 按 relation_id 覆盖，last-write-wins
func (s *RelationStore) Update(r *model.CopyRelation) error {
	if err := ValidateRelation(r); err != nil {
		return err
	}
	if err := s.checkOwnership(r); err != nil {
		return err
	}
	r.UpdatedAt = s.nowFn().UnixMilli()

	// master 变更时先摘掉旧索引
	s.idMu.RLock()
	oldMaster, existed := s.idToMaster[r.RelationID]
	s.idMu.RUnlock()
	if existed && oldMaster != r.SourceAccountID {
		s.indexRemove(oldMaster, r.RelationID)
		s.invalidateCache(oldMaster)
	}

	if pg.GormDB != nil {
		if err := pg.SaveRelation(r); err != nil {
			return err
		}
	}
	s.indexPut(r)
	s.invalidateCache(r.SourceAccountID)
	return nil
}

// Delete 删除关系
func (s *RelationStore) Delete(relationID string) error {
	s.idMu.RLock()
	master, ok := s.idToMaster[relationID]
	s.idMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: relation %s not found", ErrRelationInvalid, relationID)
	}
	if pg.GormDB != nil {
		if err := pg.DeleteRelation(relationID); err != nil {
			return err
		}
	}
	s.indexRemove(master, relationID)
	s.invalidateCache(master)
	return nil
}

// Get 查询单条（内存索引副本）
func (s *RelationStore) Get(relationID string) (model.CopyRelation, bool) {
	s.idMu.RLock()
	master, ok := s.idToMaster[relationID]
	s.idMu.RUnlock()
	if !ok {
		return model.CopyRelation{}, false
	}
	sh := s.shard(master)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	r, ok := sh.byMaster[master][relationID]
	if !ok {
		return model.CopyRelation{}, false
	}
	return *r, true
}

// ActiveRelationsForMaster 某 master 的全部启用关系，热路径
func (s *RelationStore) ActiveRelationsForMaster(masterAccountID string) []model.CopyRelation {
	sh := s.shard(masterAccountID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	bucket := sh.byMaster[masterAccountID]
	if len(bucket) == 0 {
		return nil
	}
	res := make([]model.CopyRelation, 0, len(bucket))
	for _, r := range bucket {
		if r.IsActive {
			res = append(res, *r)
		}
	}
	return res
}

// ListByOwner 某用户全部关系
func (s *RelationStore) ListByOwner(ownerUserID string) []model.CopyRelation {
	var res []model.CopyRelation
	for i := 0; i < relationShardNum; i++ {
		sh := s.shards[i]
		sh.mu.RLock()
		for _, bucket := range sh.byMaster {
			for _, r := range bucket {
				if r.OwnerUserID == ownerUserID {
					res = append(res, *r)
				}
			}
		}
		sh.mu.RUnlock()
	}
	return res
}

func (s *RelationStore) indexPut(r *model.CopyRelation) {
	cp := *r
	sh := s.shard(r.SourceAccountID)
	sh.mu.Lock()
	bucket := sh.byMaster[r.SourceAccountID]
	if bucket == nil {
		bucket = make(map[string]*model.CopyRelation)
		sh.byMaster[r.SourceAccountID] = bucket
	}
	bucket[r.RelationID] = &cp
	sh.mu.Unlock()

	s.idMu.Lock()
	s.idToMaster[r.RelationID] = r.SourceAccountID
	s.idMu.Unlock()
}

func (s *RelationStore) indexRemove(masterAccountID, relationID string) {
	sh := s.shard(masterAccountID)
	sh.mu.Lock()
	if bucket, ok := sh.byMaster[masterAccountID]; ok {
		delete(bucket, relationID)
		if len(bucket) == 0 {
			delete(sh.byMaster, masterAccountID)
		}
	}
	sh.mu.Unlock()

	s.idMu.Lock()
	delete(s.idToMaster, relationID)
	s.idMu.Unlock()
}

func (s *RelationStore) invalidateCache(masterAccountID string) {
	if redis.Client == nil {
		return
	}
	key := redis.KeyRelationsPrefix + masterAccountID
	if err := redis.Client.Del(context.Background(), key).Err(); err != nil {
		hlog.Warnf("[RelationStore] cache invalidate failed, master=%s, err=%v", masterAccountID, err)
	}
}

// ValidateRelation 写入前校验，错误统一包成 ErrRelationInvalid
func ValidateRelation(r *model.CopyRelation) error {
	if err := validator.Validate(r); err != nil {
		return fmt.Errorf("%w: %v", ErrRelationInvalid, err)
	}
	switch r.VolumeMode {
	case model.VolumeModeMultiply, model.VolumeModeFixed, model.VolumeModeProportional:
	default:
		return fmt.Errorf("%w: bad volume_mode %q", ErrRelationInvalid, r.VolumeMode)
	}
	switch r.SlTpMode {
	case model.SlTpModeCopy, model.SlTpModeMultiply, model.SlTpModeFixedPips, model.SlTpModeNone:
	default:
		return fmt.Errorf("%w: bad sl_tp_mode %q", ErrRelationInvalid, r.SlTpMode)
	}
	for _, side := range splitCSV(r.AllowedSides) {
		if side != model.SideBuy && side != model.SideSell {
			return fmt.Errorf("%w: bad side %q", ErrRelationInvalid, side)
		}
	}
	if r.SourceAccountID == r.TargetAccountID {
		return fmt.Errorf("%w: source equals target", ErrRelationInvalid)
	}
	return nil
}

func splitCSV(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			res = append(res, p)
		}
	}
	return res
}

// --- 当日风控计数，按 UTC 日期归零 ---

func (s *RelationStore) dayKey() string {
	return s.nowFn().UTC().Format("2006-01-02")
}

func (s *RelationStore) counter(relationID string) *dailyCounter {
	day := s.dayKey()
	c, ok := s.counters[relationID]
	if !ok || c.day != day {
		c = &dailyCounter{day: day}
		s.counters[relationID] = c
	}
	return c
}

// IncDailyTrades 当日跟单笔数+1
func (s *RelationStore) IncDailyTrades(relationID string) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.counter(relationID).trades++
}

// AddDailyLoss 累加当日亏损（传入正数）
func (s *RelationStore) AddDailyLoss(relationID string, loss float64) {
	if loss <= 0 {
		return
	}
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.counter(relationID).loss += loss
}

// DailyStats 当日笔数与亏损
func (s *RelationStore) DailyStats(relationID string) (int, float64) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	c := s.counter(relationID)
	return c.trades, c.loss
}
