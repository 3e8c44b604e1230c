package handler

import (
	"context"
	"errors"
	"strconv"

	"copytrade-hertz/biz/model"
	"copytrade-hertz/biz/service"
	"copytrade-hertz/util"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// CreateRelation 新建跟单关系
func CreateRelation(ctx context.Context, c *app.RequestContext) {
	var req model.CopyRelation
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.RelationID == "" {
		id, err := util.GenerateTradeID()
		if err != nil {
			c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
			return
		}
		req.RelationID = strconv.FormatUint(id, 10)
	}
	if err := Relations.Create(&req); err != nil {
		if errors.Is(err, service.ErrRelationInvalid) {
			c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"relation_id": req.RelationID, "status": "created"})
}

// UpdateRelation 全量覆盖一条关系，last-write-wins
func UpdateRelation(ctx context.Context, c *app.RequestContext) {
	var req model.CopyRelation
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.RelationID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "relation_id required"})
		return
	}
	if _, ok := Relations.Get(req.RelationID); !ok {
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "relation not found"})
		return
	}
	if err := Relations.Update(&req); err != nil {
		if errors.Is(err, service.ErrRelationInvalid) {
			c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"relation_id": req.RelationID, "status": "updated"})
}

// DeleteRelation 删除一条关系
func DeleteRelation(ctx context.Context, c *app.RequestContext) {
	relationID := c.Param("id")
	if relationID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "relation id required"})
		return
	}
	if _, ok := Relations.Get(relationID); !ok {
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "relation not found"})
		return
	}
	if err := Relations.Delete(relationID); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"relation_id": relationID, "status": "deleted"})
}

// GetRelation 查询单条关系
func GetRelation(ctx context.Context, c *app.RequestContext) {
	relationID := c.Param("id")
	rel, ok := Relations.Get(relationID)
	if !ok {
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "relation not found"})
		return
	}
	c.JSON(consts.StatusOK, rel)
}

// ListRelations 查询某用户全部关系
func ListRelations(ctx context.Context, c *app.RequestContext) {
	userID := string(c.Query("user_id"))
	if userID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "user_id required"})
		return
	}
	c.JSON(consts.StatusOK, Relations.ListByOwner(userID))
}
