package handler

import (
	"context"

	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// CreateProvider 发布信号源
func CreateProvider(ctx context.Context, c *app.RequestContext) {
	var req model.SignalProvider
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.OwnerUserID == "" || req.MasterAccountNumber == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "owner_user_id and master_account_number required"})
		return
	}
	if err := Providers.CreateProvider(&req); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"provider_id": req.ProviderID, "status": "created"})
}

// ListProviders 公开信号源列表
func ListProviders(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, Providers.ListPublic())
}

type SubscribeRequest struct {
	ProviderID       string             `json:"provider_id"`
	SubscriberUserID string             `json:"subscriber_user_id"`
	SlaveAccountID   string             `json:"slave_account_id"`
	Relation         model.CopyRelation `json:"relation"` // 换算与风控配置
}

// SubscribeProvider 订阅信号源
func SubscribeProvider(ctx context.Context, c *app.RequestContext) {
	var req SubscribeRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.ProviderID == "" || req.SubscriberUserID == "" || req.SlaveAccountID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "missing required fields"})
		return
	}
	sub := &model.ProviderSubscription{
		ProviderID:       req.ProviderID,
		SubscriberUserID: req.SubscriberUserID,
		SlaveAccountID:   req.SlaveAccountID,
	}
	if err := Providers.Subscribe(sub, &req.Relation); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"subscription_id": sub.SubscriptionID, "relation_id": sub.RelationID, "status": "subscribed"})
}

// UnsubscribeProvider 退订信号源
func UnsubscribeProvider(ctx context.Context, c *app.RequestContext) {
	type UnsubscribeRequest struct {
		ProviderID     string `json:"provider_id"`
		SubscriptionID string `json:"subscription_id"`
	}
	var req UnsubscribeRequest
	if err := c.BindAndValidate(&req); err != nil || req.ProviderID == "" || req.SubscriptionID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "provider_id and subscription_id required"})
		return
	}
	Providers.Unsubscribe(req.ProviderID, req.SubscriptionID)
	c.JSON(consts.StatusOK, map[string]interface{}{"subscription_id": req.SubscriptionID, "status": "unsubscribed"})
}
