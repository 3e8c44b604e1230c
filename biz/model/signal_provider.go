package model

import (
	"gorm.io/gorm"
)

// SignalProvider 信号源（GORM）
// 允许其他用户的 slave 订阅本 master 的信号，订阅资格由计费侧校验
type SignalProvider struct {
	ProviderID          string  `gorm:"primaryKey;column:provider_id" json:"provider_id"`
	OwnerUserID         string  `gorm:"column:owner_user_id;index" json:"owner_user_id" validate:"nonzero"`
	MasterAccountNumber string  `gorm:"column:master_account_number;index" json:"master_account_number" validate:"nonzero"`
	IsPublic            bool    `gorm:"column:is_public" json:"is_public"`
	IsActive            bool    `gorm:"column:is_active" json:"is_active"`
	SubscriptionFee     float64 `gorm:"column:subscription_fee" json:"subscription_fee" validate:"min=0"`
	CreatedAt           int64   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           int64   `gorm:"column:updated_at" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (SignalProvider) TableName() string {
	return "signal_providers"
}

// ProviderSubscription 跨用户订阅关系（GORM）
// 路由时等价于一条 CopyRelation，资格校验走 EntitlementChecker
type ProviderSubscription struct {
	SubscriptionID   string `gorm:"primaryKey;column:subscription_id" json:"subscription_id"`
	ProviderID       string `gorm:"column:provider_id;index" json:"provider_id" validate:"nonzero"`
	SubscriberUserID string `gorm:"column:subscriber_user_id;index" json:"subscriber_user_id" validate:"nonzero"`
	SlaveAccountID   string `gorm:"column:slave_account_id" json:"slave_account_id" validate:"nonzero"`
	RelationID       string `gorm:"column:relation_id" json:"relation_id"` // 订阅生成的跟单规则
	IsActive         bool   `gorm:"column:is_active" json:"is_active"`
	CreatedAt        int64  `gorm:"column:created_at" json:"created_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ProviderSubscription) TableName() string {
	return "provider_subscriptions"
}
