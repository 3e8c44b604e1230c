package pg

import (
	"copytrade-hertz/biz/model"
)

// CreateProvider 新建信号源
func CreateProvider(p *model.SignalProvider) error {
	return GormDB.Create(p).Error
}

// SaveProvider 覆盖写
func SaveProvider(p *model.SignalProvider) error {
	return GormDB.Save(p).Error
}

// GetProvider 按ID查询
func GetProvider(providerID string) (*model.SignalProvider, error) {
	var p model.SignalProvider
	err := GormDB.First(&p, "provider_id = ?", providerID).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPublicProviders 公开且启用的信号源
func ListPublicProviders() ([]model.SignalProvider, error) {
	var ps []model.SignalProvider
	err := GormDB.Where("is_public = ? AND is_active = ?", true, true).Find(&ps).Error
	return ps, err
}

// ListProvidersByMaster 某 master 账号挂的信号源
func ListProvidersByMaster(masterAccountNumber string) ([]model.SignalProvider, error) {
	var ps []model.SignalProvider
	err := GormDB.Where("master_account_number = ? AND is_active = ?", masterAccountNumber, true).Find(&ps).Error
	return ps, err
}

// CreateSubscription 新建订阅
func CreateSubscription(s *model.ProviderSubscription) error {
	return GormDB.Create(s).Error
}

// ListSubscriptionsByProvider 某信号源下启用的订阅
func ListSubscriptionsByProvider(providerID string) ([]model.ProviderSubscription, error) {
	var subs []model.ProviderSubscription
	err := GormDB.Where("provider_id = ? AND is_active = ?", providerID, true).Find(&subs).Error
	return subs, err
}
