package model

import (
	"strings"

	"gorm.io/gorm"
)

// 手数换算模式
const (
	VolumeModeMultiply     = "multiply"     // copy_ratio * 主单手数
	VolumeModeFixed        = "fixed"        // 固定手数
	VolumeModeProportional = "proportional" // 按净值比例
)

// 止损止盈跟随模式
const (
	SlTpModeCopy      = "copy_100"   // 原样复制
	SlTpModeMultiply  = "multiply"   // 点差按倍数缩放
	SlTpModeFixedPips = "fixed_pips" // 固定点数
	SlTpModeNone      = "none"       // 不带止损止盈
)

// CopyRelation 跟单关系（GORM）
// 同一 slave 可挂多个 master，风控按单条关系独立计算
type CopyRelation struct {
	RelationID      string  `gorm:"primaryKey;column:relation_id" json:"relation_id"`
	SourceAccountID string  `gorm:"column:source_account_id;index" json:"source_account_id" validate:"nonzero"`
	TargetAccountID string  `gorm:"column:target_account_id;index" json:"target_account_id" validate:"nonzero"`
	OwnerUserID     string  `gorm:"column:owner_user_id;index" json:"owner_user_id" validate:"nonzero"`
	IsActive        bool    `gorm:"column:is_active" json:"is_active"`
	VolumeMode      string  `gorm:"column:volume_mode" json:"volume_mode"`
	CopyRatio       float64 `gorm:"column:copy_ratio" json:"copy_ratio" validate:"min=0"`
	FixedVolume     float64 `gorm:"column:fixed_volume" json:"fixed_volume" validate:"min=0"`
	MaxLotSize      float64 `gorm:"column:max_lot_size" json:"max_lot_size" validate:"min=0"`
	SlTpMode        string  `gorm:"column:sl_tp_mode" json:"sl_tp_mode"`
	SlTpMultiplier  float64 `gorm:"column:sl_tp_multiplier" json:"sl_tp_multiplier" validate:"min=0"`
	SlFixedPips     float64 `gorm:"column:sl_fixed_pips" json:"sl_fixed_pips" validate:"min=0"`
	TpFixedPips     float64 `gorm:"column:tp_fixed_pips" json:"tp_fixed_pips" validate:"min=0"`
	AllowedSymbols  string  `gorm:"column:allowed_symbols" json:"allowed_symbols"` // 逗号分隔，空=全部
	AllowedSides    string  `gorm:"column:allowed_sides" json:"allowed_sides"`     // 逗号分隔 BUY,SELL，空=全部
	MaxDailyLoss    float64 `gorm:"column:max_daily_loss" json:"max_daily_loss" validate:"min=0"`
	MaxDailyTrades  int     `gorm:"column:max_daily_trades" json:"max_daily_trades" validate:"min=0"`
	CreatedAt       int64   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       int64   `gorm:"column:updated_at" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CopyRelation) TableName() string {
	return "copy_relations"
}

// SymbolAllowed 判断品种是否在白名单内，空白名单放行全部
func (r *CopyRelation) SymbolAllowed(symbol string) bool {
	return inCSV(r.AllowedSymbols, symbol)
}

// SideAllowed 判断方向是否允许
func (r *CopyRelation) SideAllowed(side string) bool {
	return inCSV(r.AllowedSides, side)
}

func inCSV(csv, v string) bool {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return true
	}
	for _, p := range strings.Split(csv, ",") {
		if strings.TrimSpace(p) == v {
			return true
		}
	}
	return false
}
