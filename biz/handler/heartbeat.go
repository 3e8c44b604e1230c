package handler

import (
	"context"

	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

type HeartbeatRequest struct {
	AccountID   string  `json:"account_id"`
	UserID      string  `json:"user_id"`
	AccountName string  `json:"account_name"`
	Role        string  `json:"role"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
}

// Heartbeat 终端心跳上报
func Heartbeat(ctx context.Context, c *app.RequestContext) {
	var req HeartbeatRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.AccountID == "" || req.UserID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "account_id and user_id required"})
		return
	}
	if req.Role != model.RoleMaster && req.Role != model.RoleSlave {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "role must be master or slave"})
		return
	}
	Registry.Heartbeat(req.AccountID, req.UserID, req.AccountName, req.Role, req.Balance, req.Equity)
	c.JSON(consts.StatusOK, map[string]interface{}{"account_id": req.AccountID, "status": "ok"})
}

// Disconnect 终端主动下线
func Disconnect(ctx context.Context, c *app.RequestContext) {
	type DisconnectRequest struct {
		AccountID string `json:"account_id"`
	}
	var req DisconnectRequest
	if err := c.BindAndValidate(&req); err != nil || req.AccountID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "account_id required"})
		return
	}
	Registry.Disconnect(req.AccountID)
	c.JSON(consts.StatusOK, map[string]interface{}{"account_id": req.AccountID, "status": "offline"})
}
