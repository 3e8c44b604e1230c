package pg

import (
	"time"

	"copytrade-hertz/biz/model"
)

// InsertTrade 写入成交事件
func InsertTrade(t *model.LiveTrade) error {
	return GormDB.Create(t).Error
}

// SaveTrade 覆盖写（收盘落定）
func SaveTrade(t *model.LiveTrade) error {
	return GormDB.Save(t).Error
}

// UpsertSlaveStatus 写入/更新单条投递结果
func UpsertSlaveStatus(s *model.SlaveStatus) error {
	return GormDB.Save(s).Error
}

// GetTradeByMasterTicket 按终端票据号定位成交，平仓事件解析用
func GetTradeByMasterTicket(masterAccountID string, ticket int64) (*model.LiveTrade, error) {
	var t model.LiveTrade
	err := GormDB.Preload("SlaveStatuses").
		First(&t, "master_account_id = ? AND ticket = ?", masterAccountID, ticket).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTradesByUser 某用户最近成交，按时间倒序
func ListTradesByUser(ownerUserID string, limit int) ([]model.LiveTrade, error) {
	var trades []model.LiveTrade
	err := GormDB.Preload("SlaveStatuses").
		Where("owner_user_id = ?", ownerUserID).
		Order("timestamp desc").Limit(limit).Find(&trades).Error
	return trades, err
}

// QueryTradesByMasterAndTime 查询某 master 在指定时间段的成交
func QueryTradesByMasterAndTime(masterAccountID string, start, end time.Time) ([]model.LiveTrade, error) {
	var trades []model.LiveTrade
	err := GormDB.Table("live_trades").
		Where("master_account_id = ? AND timestamp >= ? AND timestamp < ?", masterAccountID, start.UnixMilli(), end.UnixMilli()).
		Find(&trades).Error
	return trades, err
}

// GetActiveMasters 查询指定时间段内有成交的所有 master
func GetActiveMasters(start, end time.Time) ([]string, error) {
	var masters []string
	err := GormDB.Model(&model.LiveTrade{}).Distinct().
		Where("timestamp >= ? AND timestamp < ?", start.UnixMilli(), end.UnixMilli()).
		Pluck("master_account_id", &masters).Error
	return masters, err
}
