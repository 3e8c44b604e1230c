package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"copytrade-hertz/biz/dal/pg"
	"copytrade-hertz/biz/dal/redis"
	"copytrade-hertz/biz/model"
	"copytrade-hertz/util"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

// EntitlementChecker 跨用户订阅的资格校验，计费侧维护结果
type EntitlementChecker interface {
	Entitled(providerID, subscriberUserID string) bool
}

// RedisEntitlementChecker 资格标记在 Redis，计费服务写、这里只读
type RedisEntitlementChecker struct{}

func (RedisEntitlementChecker) Entitled(providerID, subscriberUserID string) bool {
	if redis.Client == nil {
		return false
	}
	v, err := redis.Client.Get(context.Background(), redis.KeyEntitledPrefix+providerID+":"+subscriberUserID).Result()
	if err != nil {
		return false
	}
	return v == "1"
}

// SignalProviderService 信号源与跨用户订阅
// 分发热路径只读内存索引，增删订阅才动锁
type SignalProviderService struct {
	mu                sync.RWMutex
	providers         map[string]*model.SignalProvider // providerID ->
	providersByMaster map[string]*model.SignalProvider // master 账号 ->
	subsByProvider    map[string][]*model.ProviderSubscription
	subRelations      map[string]model.CopyRelation // subscriptionID -> 生成的跟单规则

	checker EntitlementChecker
}

func NewSignalProviderService(checker EntitlementChecker) *SignalProviderService {
	return &SignalProviderService{
		providers:         make(map[string]*model.SignalProvider),
		providersByMaster: make(map[string]*model.SignalProvider),
		subsByProvider:    make(map[string][]*model.ProviderSubscription),
		subRelations:      make(map[string]model.CopyRelation),
		checker:           checker,
	}
}

// LoadFromDB 启动时恢复信号源与订阅索引
func (s *SignalProviderService) LoadFromDB() error {
	if pg.GormDB == nil {
		return nil
	}
	providers, err := pg.ListPublicProviders()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range providers {
		p := &providers[i]
		s.providers[p.ProviderID] = p
		s.providersByMaster[p.MasterAccountNumber] = p

		subs, err := pg.ListSubscriptionsByProvider(p.ProviderID)
		if err != nil {
			return err
		}
		for j := range subs {
			sub := &subs[j]
			s.subsByProvider[p.ProviderID] = append(s.subsByProvider[p.ProviderID], sub)
			if sub.RelationID != "" {
				rel, err := pg.GetRelation(sub.RelationID)
				if err == nil {
					s.subRelations[sub.SubscriptionID] = *rel
				}
			}
		}
	}
	hlog.Infof("[Provider] loaded %d providers", len(s.providers))
	return nil
}

// CreateProvider 发布信号源
func (s *SignalProviderService) CreateProvider(p *model.SignalProvider) error {
	if p.ProviderID == "" {
		id, err := util.GenerateTradeID()
		if err != nil {
			return err
		}
		p.ProviderID = strconv.FormatUint(id, 10)
	}
	now := time.Now().UnixMilli()
	p.CreatedAt = now
	p.UpdatedAt = now

	if pg.GormDB != nil {
		if err := pg.CreateProvider(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.providers[p.ProviderID] = p
	s.providersByMaster[p.MasterAccountNumber] = p
	s.mu.Unlock()
	hlog.Infof("[Provider] provider created, provider_id=%s, master=%s", p.ProviderID, p.MasterAccountNumber)
	return nil
}

// GetProvider 按ID取
func (s *SignalProviderService) GetProvider(providerID string) (*model.SignalProvider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[providerID]
	return p, ok
}

// ListPublic 公开信号源列表
func (s *SignalProviderService) ListPublic() []*model.SignalProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SignalProvider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.IsPublic && p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// Subscribe 订阅信号源并生成跟单规则
// 规则的 source 固定为信号源挂的 master 账号
func (s *SignalProviderService) Subscribe(sub *model.ProviderSubscription, rel *model.CopyRelation) error {
	s.mu.RLock()
	p, ok := s.providers[sub.ProviderID]
	s.mu.RUnlock()
	if !ok || !p.IsActive || !p.IsPublic {
		return errors.New("provider not available")
	}

	if sub.SubscriptionID == "" {
		id, err := util.GenerateTradeID()
		if err != nil {
			return err
		}
		sub.SubscriptionID = strconv.FormatUint(id, 10)
	}
	sub.IsActive = true
	sub.CreatedAt = time.Now().UnixMilli()

	rel.RelationID = sub.SubscriptionID
	rel.SourceAccountID = p.MasterAccountNumber
	rel.TargetAccountID = sub.SlaveAccountID
	rel.OwnerUserID = sub.SubscriberUserID
	rel.IsActive = true
	if err := ValidateRelation(rel); err != nil {
		return err
	}
	sub.RelationID = rel.RelationID

	if pg.GormDB != nil {
		if err := pg.CreateRelation(rel); err != nil {
			return err
		}
		if err := pg.CreateSubscription(sub); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.subsByProvider[sub.ProviderID] = append(s.subsByProvider[sub.ProviderID], sub)
	s.subRelations[sub.SubscriptionID] = *rel
	s.mu.Unlock()
	hlog.Infof("[Provider] subscribed, provider_id=%s, subscriber=%s, slave=%s", sub.ProviderID, sub.SubscriberUserID, sub.SlaveAccountID)
	return nil
}

// Unsubscribe 退订，规则一并下线
func (s *SignalProviderService) Unsubscribe(providerID, subscriptionID string) {
	s.mu.Lock()
	subs := s.subsByProvider[providerID]
	for i, sub := range subs {
		if sub.SubscriptionID == subscriptionID {
			sub.IsActive = false
			s.subsByProvider[providerID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	delete(s.subRelations, subscriptionID)
	s.mu.Unlock()
}

// SubscriberRelations 某 master 上所有有效订阅对应的跟单规则
func (s *SignalProviderService) SubscriberRelations(masterAccountID string) []model.CopyRelation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providersByMaster[masterAccountID]
	if !ok || !p.IsActive {
		return nil
	}
	var out []model.CopyRelation
	for _, sub := range s.subsByProvider[p.ProviderID] {
		if !sub.IsActive {
			continue
		}
		if rel, ok := s.subRelations[sub.SubscriptionID]; ok {
			out = append(out, rel)
		}
	}
	return out
}

// Entitled 订阅者是否有权接收该 master 的信号
// 自己的号、免费信号源直接放行，付费的问计费侧
func (s *SignalProviderService) Entitled(masterAccountID, subscriberUserID string) bool {
	s.mu.RLock()
	p, ok := s.providersByMaster[masterAccountID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if p.OwnerUserID == subscriberUserID {
		return true
	}
	if p.SubscriptionFee == 0 {
		return true
	}
	if s.checker == nil {
		return false
	}
	return s.checker.Entitled(p.ProviderID, subscriberUserID)
}
