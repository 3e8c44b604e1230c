package model

import (
	"gorm.io/gorm"
)

// 交易方向
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// 跟单执行状态
const (
	CopyPending = "pending"
	CopySuccess = "success"
	CopyFailed  = "failed"
)

// LiveTrade 主账户成交事件（GORM）
// 入链后除 SlaveStatuses 追加/落定外不可变
type LiveTrade struct {
	TradeID         string  `gorm:"primaryKey;column:trade_id" json:"trade_id"`
	MasterAccountID string  `gorm:"column:master_account_id;index:idx_master_ticket,unique" json:"master_account_id"`
	Ticket          int64   `gorm:"column:ticket;index:idx_master_ticket,unique" json:"ticket"`
	Seq             int64   `gorm:"column:seq" json:"seq"` // master 内单调递增序号
	OwnerUserID     string  `gorm:"column:owner_user_id;index" json:"owner_user_id"`
	Symbol          string  `gorm:"column:symbol" json:"symbol"`
	Type            string  `gorm:"column:type" json:"type"`
	Volume          float64 `gorm:"column:volume" json:"volume"`
	OpenPrice       float64 `gorm:"column:open_price" json:"open_price"`
	StopLoss        float64 `gorm:"column:stop_loss" json:"stop_loss"`     // 0 = 无
	TakeProfit      float64 `gorm:"column:take_profit" json:"take_profit"` // 0 = 无
	Timestamp       int64   `gorm:"column:timestamp" json:"timestamp"`
	Closed          bool    `gorm:"column:closed" json:"closed"`
	ClosePrice      float64 `gorm:"column:close_price" json:"close_price"`
	Profit          float64 `gorm:"column:profit" json:"profit"`

	SlaveStatuses []*SlaveStatus `gorm:"foreignKey:TradeID;references:TradeID" json:"slave_statuses"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (LiveTrade) TableName() string {
	return "live_trades"
}

// SlaveStatus 单个 slave 的跟单投递结果
// pending 只允许落定一次为 success/failed
type SlaveStatus struct {
	ID               uint     `gorm:"primaryKey" json:"-"`
	TradeID          string   `gorm:"column:trade_id;index:idx_trade_slave,unique" json:"trade_id"`
	RelationID       string   `gorm:"column:relation_id" json:"relation_id"`
	SlaveAccountID   string   `gorm:"column:slave_account_id;index:idx_trade_slave,unique" json:"slave_account_id"`
	SlaveAccountName string   `gorm:"column:slave_account_name" json:"slave_account_name"`
	Status           string   `gorm:"column:status" json:"status"`
	ExecutionTimeMs  *int64   `gorm:"column:execution_time_ms" json:"execution_time_ms"`
	SlippagePips     *float64 `gorm:"column:slippage_pips" json:"slippage_pips"`
	SlaveTicket      int64    `gorm:"column:slave_ticket" json:"slave_ticket"`
	Error            string   `gorm:"column:error" json:"error,omitempty"`
}

func (SlaveStatus) TableName() string {
	return "slave_statuses"
}

// 指令动作
const (
	InstructionOpen  = "open"
	InstructionClose = "close"
)

// CopyInstruction 下发给执行桥的跟单指令，不落库
type CopyInstruction struct {
	InstructionID   string  `json:"instruction_id"`
	Action          string  `json:"action"`
	TradeID         string  `json:"trade_id"`
	RelationID      string  `json:"relation_id"`
	MasterAccountID string  `json:"master_account_id"`
	SlaveAccountID  string  `json:"slave_account_id"`
	OwnerUserID     string  `json:"owner_user_id"`
	Symbol          string  `json:"symbol"`
	Type            string  `json:"type"`
	Volume          float64 `json:"volume"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	SlaveTicket     int64   `json:"slave_ticket,omitempty"` // 平仓时用
	SlaveOnline     bool    `json:"-"`                      // 离线则进补偿队列
	Timestamp       int64   `json:"timestamp"`
}
