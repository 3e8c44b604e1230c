package handler

import (
	"context"
	"errors"

	"copytrade-hertz/biz/model"
	"copytrade-hertz/biz/service"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

type OutcomeRequest struct {
	TradeID         string   `json:"trade_id"`
	SlaveAccountID  string   `json:"slave_account_id"`
	Status          string   `json:"status"`
	ExecutionTimeMs *int64   `json:"execution_time_ms"`
	SlippagePips    *float64 `json:"slippage_pips"`
	SlaveTicket     int64    `json:"slave_ticket"`
	Error           string   `json:"error"`
}

// RecordOutcome 执行桥回报跟单结果
// 同一 (trade, slave) 只认第一次回报，重复回报返回 409
func RecordOutcome(ctx context.Context, c *app.RequestContext) {
	var req OutcomeRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.TradeID == "" || req.SlaveAccountID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "trade_id and slave_account_id required"})
		return
	}
	if req.Status != model.CopySuccess && req.Status != model.CopyFailed {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "status must be success or failed"})
		return
	}

	err := Tracker.RecordOutcome(req.TradeID, req.SlaveAccountID, req.Status, req.ExecutionTimeMs, req.SlippagePips, req.SlaveTicket, req.Error)
	switch {
	case errors.Is(err, service.ErrAlreadyRecorded):
		c.JSON(consts.StatusConflict, map[string]interface{}{"error": "outcome already recorded"})
	case errors.Is(err, service.ErrUnknownTrade):
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "trade not found"})
	case errors.Is(err, service.ErrUnknownSlave):
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "slave not attached to trade"})
	case err != nil:
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	default:
		c.JSON(consts.StatusOK, map[string]interface{}{"status": "recorded"})
	}
}
