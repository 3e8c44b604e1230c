package pg

import (
	"copytrade-hertz/biz/model"
)

// CreateRelation 新建跟单关系
func CreateRelation(r *model.CopyRelation) error {
	return GormDB.Create(r).Error
}

// SaveRelation 按 relation_id 全量覆盖，last-write-wins
func SaveRelation(r *model.CopyRelation) error {
	return GormDB.Save(r).Error
}

// DeleteRelation 软删除
func DeleteRelation(relationID string) error {
	return GormDB.Delete(&model.CopyRelation{}, "relation_id = ?", relationID).Error
}

// GetRelation 按ID查询
func GetRelation(relationID string) (*model.CopyRelation, error) {
	var r model.CopyRelation
	err := GormDB.First(&r, "relation_id = ?", relationID).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRelationsByMaster 查询某 master 下全部关系
func ListRelationsByMaster(masterAccountID string) ([]model.CopyRelation, error) {
	var rs []model.CopyRelation
	err := GormDB.Where("source_account_id = ?", masterAccountID).Find(&rs).Error
	return rs, err
}

// ListRelationsByOwner 查询某用户全部关系
func ListRelationsByOwner(ownerUserID string) ([]model.CopyRelation, error) {
	var rs []model.CopyRelation
	err := GormDB.Where("owner_user_id = ?", ownerUserID).Find(&rs).Error
	return rs, err
}

// ListAllRelations 全量加载，启动时重建内存索引用
func ListAllRelations() ([]model.CopyRelation, error) {
	var rs []model.CopyRelation
	err := GormDB.Find(&rs).Error
	return rs, err
}
