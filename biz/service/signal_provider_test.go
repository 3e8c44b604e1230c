package service

import (
	"testing"

	"copytrade-hertz/biz/model"
)

type mapChecker map[string]bool

func (m mapChecker) Entitled(providerID, subscriberUserID string) bool {
	return m[providerID+":"+subscriberUserID]
}

func publicProvider() *model.SignalProvider {
	return &model.SignalProvider{
		OwnerUserID:         "u1",
		MasterAccountNumber: "M1",
		IsPublic:            true,
		IsActive:            true,
	}
}

func TestSubscribeBuildsRelation(t *testing.T) {
	svc := NewSignalProviderService(nil)
	p := publicProvider()
	if err := svc.CreateProvider(p); err != nil {
		t.Fatalf("create provider: %v", err)
	}

	sub := &model.ProviderSubscription{
		ProviderID:       p.ProviderID,
		SubscriberUserID: "u2",
		SlaveAccountID:   "S9",
	}
	rel := &model.CopyRelation{
		VolumeMode: model.VolumeModeMultiply,
		CopyRatio:  0.5,
		SlTpMode:   model.SlTpModeCopy,
	}
	if err := svc.Subscribe(sub, rel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// 订阅规则的 source 固定为信号源的 master 账号
	if rel.SourceAccountID != "M1" || rel.TargetAccountID != "S9" || rel.OwnerUserID != "u2" {
		t.Errorf("relation not derived from subscription: %+v", rel)
	}

	rels := svc.SubscriberRelations("M1")
	if len(rels) != 1 || rels[0].TargetAccountID != "S9" {
		t.Errorf("subscriber relations: %+v", rels)
	}

	svc.Unsubscribe(p.ProviderID, sub.SubscriptionID)
	if rels := svc.SubscriberRelations("M1"); len(rels) != 0 {
		t.Errorf("unsubscribed relation still routed: %d", len(rels))
	}
}

func TestSubscribeUnavailableProvider(t *testing.T) {
	svc := NewSignalProviderService(nil)
	p := publicProvider()
	p.IsPublic = false
	if err := svc.CreateProvider(p); err != nil {
		t.Fatalf("create provider: %v", err)
	}

	sub := &model.ProviderSubscription{ProviderID: p.ProviderID, SubscriberUserID: "u2", SlaveAccountID: "S9"}
	rel := &model.CopyRelation{VolumeMode: model.VolumeModeMultiply, CopyRatio: 1, SlTpMode: model.SlTpModeCopy}
	if err := svc.Subscribe(sub, rel); err == nil {
		t.Errorf("private provider must reject subscription")
	}
	if err := svc.Subscribe(&model.ProviderSubscription{ProviderID: "nope"}, rel); err == nil {
		t.Errorf("unknown provider must reject subscription")
	}
}

func TestEntitled(t *testing.T) {
	checker := mapChecker{}
	svc := NewSignalProviderService(checker)

	free := publicProvider()
	if err := svc.CreateProvider(free); err != nil {
		t.Fatalf("create free provider: %v", err)
	}
	paid := &model.SignalProvider{
		OwnerUserID:         "u1",
		MasterAccountNumber: "M2",
		IsPublic:            true,
		IsActive:            true,
		SubscriptionFee:     29.9,
	}
	if err := svc.CreateProvider(paid); err != nil {
		t.Fatalf("create paid provider: %v", err)
	}

	if !svc.Entitled("M1", "u2") {
		t.Errorf("free provider should entitle everyone")
	}
	if !svc.Entitled("M2", "u1") {
		t.Errorf("owner always entitled to own provider")
	}
	if svc.Entitled("M2", "u2") {
		t.Errorf("paid provider without entitlement flag must deny")
	}
	checker[paid.ProviderID+":u2"] = true
	if !svc.Entitled("M2", "u2") {
		t.Errorf("paid provider with entitlement flag should allow")
	}
	if svc.Entitled("M9", "u2") {
		t.Errorf("unknown master must deny")
	}
}
