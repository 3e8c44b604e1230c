package handler

import (
	"context"
	"encoding/json"
	"strconv"

	"copytrade-hertz/biz/dal/redis"
	"copytrade-hertz/biz/model"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ListAccounts 查询某用户的终端账户及在线状态
// 优先读 Redis 快照，缓存不可用时退回内存注册表
func ListAccounts(ctx context.Context, c *app.RequestContext) {
	userID := string(c.Query("user_id"))
	if userID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "user_id required"})
		return
	}

	if redis.Client != nil {
		data, err := redis.Client.Get(ctx, redis.KeyAccountsPrefix+userID).Result()
		if err == nil {
			var accounts []model.ConnectedAccount
			if json.Unmarshal([]byte(data), &accounts) == nil {
				c.JSON(consts.StatusOK, accounts)
				return
			}
		}
	}
	c.JSON(consts.StatusOK, Registry.ListByUser(userID))
}

// RecentTrades HTTP 轮询兜底，和 WS 的 GET_RECENT_TRADES 同语义
func RecentTrades(ctx context.Context, c *app.RequestContext) {
	userID := string(c.Query("user_id"))
	if userID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "user_id required"})
		return
	}
	limit := 0
	if l := c.Query("limit"); len(l) > 0 {
		limit, _ = strconv.Atoi(string(l))
	}
	c.JSON(consts.StatusOK, Window.Recent(userID, limit))
}

// Summary 看板汇总统计
func Summary(ctx context.Context, c *app.RequestContext) {
	userID := string(c.Query("user_id"))
	if userID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "user_id required"})
		return
	}
	c.JSON(consts.StatusOK, Analytics.Summarize(userID))
}
