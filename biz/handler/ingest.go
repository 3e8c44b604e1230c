package handler

import (
	"context"
	"errors"

	"copytrade-hertz/biz/model"
	"copytrade-hertz/biz/service"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

type TradeOpenRequest struct {
	MasterAccountID string  `json:"master_account_id"`
	Ticket          int64   `json:"ticket"`
	Symbol          string  `json:"symbol"`
	Type            string  `json:"type"`
	Volume          float64 `json:"volume"`
	OpenPrice       float64 `json:"open_price"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	Timestamp       int64   `json:"timestamp"`
}

// TradeOpen 主账户开仓事件上报
// 重复上报返回 duplicate，终端可安全重传
func TradeOpen(ctx context.Context, c *app.RequestContext) {
	var req TradeOpenRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.MasterAccountID == "" || req.Ticket == 0 || req.Symbol == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "missing required fields"})
		return
	}
	if req.Type != model.SideBuy && req.Type != model.SideSell {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "type must be BUY or SELL"})
		return
	}
	if req.Volume <= 0 {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "volume must be positive"})
		return
	}

	trade := &model.LiveTrade{
		MasterAccountID: req.MasterAccountID,
		Ticket:          req.Ticket,
		Symbol:          req.Symbol,
		Type:            req.Type,
		Volume:          req.Volume,
		OpenPrice:       req.OpenPrice,
		StopLoss:        req.StopLoss,
		TakeProfit:      req.TakeProfit,
		Timestamp:       req.Timestamp,
	}
	err := Ingest.IngestOpen(ctx, trade)
	switch {
	case errors.Is(err, service.ErrDuplicateEvent):
		c.JSON(consts.StatusOK, map[string]interface{}{"status": "duplicate", "ticket": req.Ticket})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(consts.StatusUnauthorized, map[string]interface{}{"error": "account not authorized"})
	case err != nil:
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	default:
		c.JSON(consts.StatusOK, map[string]interface{}{"status": "accepted", "trade_id": trade.TradeID, "seq": trade.Seq})
	}
}

type TradeCloseRequest struct {
	MasterAccountID string  `json:"master_account_id"`
	Ticket          int64   `json:"ticket"`
	ClosePrice      float64 `json:"close_price"`
	Profit          float64 `json:"profit"`
}

// TradeClose 主账户平仓事件上报
func TradeClose(ctx context.Context, c *app.RequestContext) {
	var req TradeCloseRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.MasterAccountID == "" || req.Ticket == 0 {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "missing required fields"})
		return
	}
	err := Ingest.IngestClose(ctx, req.MasterAccountID, req.Ticket, req.ClosePrice, req.Profit)
	switch {
	case errors.Is(err, service.ErrUnknownTrade):
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "trade not found"})
	case errors.Is(err, service.ErrDuplicateEvent):
		c.JSON(consts.StatusOK, map[string]interface{}{"status": "duplicate", "ticket": req.Ticket})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(consts.StatusUnauthorized, map[string]interface{}{"error": "account not authorized"})
	case err != nil:
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	default:
		c.JSON(consts.StatusOK, map[string]interface{}{"status": "closed", "ticket": req.Ticket})
	}
}
