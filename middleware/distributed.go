package middleware

import (
	"context"

	"copytrade-hertz/biz/service"
	"copytrade-hertz/biz/util"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// DistributedRouteMiddleware 分布式中继自动路由中间件
// 根据 PartitionManager 的分区表动态判断 master 是否本地处理，
// 非本地的成交上报转发到负责节点
func DistributedRouteMiddleware(pm *service.PartitionManager, localAddr string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		// 只拦截成交上报接口
		path := string(c.Path())
		if (path == "/api/trade/open" || path == "/api/trade/close") && string(c.Request.Method()) == consts.MethodPost {
			var req map[string]interface{}
			if err := c.BindAndValidate(&req); err != nil {
				c.String(400, "invalid request")
				c.Abort()
				return
			}
			master, _ := req["master_account_id"].(string)
			if master == "" {
				c.String(400, "master_account_id required")
				c.Abort()
				return
			}

			// 动态分区路由：判断 master 是否由本地 worker 负责
			pt := pm.GetPartitionTable()
			partitionIDs, ok := pt.MasterToPartition[master]
			if !ok || len(partitionIDs) == 0 {
				// 分区表没登记的 master 回退到静态分配
				if util.IsLocalRelayNode(master) {
					c.Next(ctx)
					return
				}
				hlog.Infof("[DistributedRoute] unpartitioned master=%s, forward by static assignment", master)
				if err := service.ForwardTradeToRelayNode(master, path, c.Request.Body()); err != nil {
					// 找不到负责节点就本地兜底，别丢事件
					hlog.Warnf("static forward failed, handling locally: %v", err)
					c.Next(ctx)
					return
				}
				c.String(200, "trade forwarded")
				c.Abort()
				return
			}
			isLocal := false
			for _, partitionID := range partitionIDs {
				partition := pt.Partitions[partitionID]
				if partition == nil {
					continue
				}
				for _, addr := range partition.Workers {
					if addr == localAddr {
						isLocal = true
						break
					}
				}
				if isLocal {
					break
				}
			}
			if !isLocal {
				hlog.Infof("[DistributedRoute] forward trade for master=%s", master)
				if err := service.ForwardTradeToRelayNode(master, path, c.Request.Body()); err != nil {
					hlog.Errorf("trade forward failed: %v", err)
					c.String(502, "trade forward failed: %v", err)
					c.Abort()
					return
				}
				c.String(200, "trade forwarded")
				c.Abort()
				return
			}
		}
		c.Next(ctx)
	}
}
