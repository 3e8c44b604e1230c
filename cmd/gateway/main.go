package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"copytrade-hertz/config"
	"copytrade-hertz/gateway"

	"github.com/cloudwego/hertz/pkg/app"
	hertzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
)

const partitionTableKey = "relay/partition/table"

// 边缘网关：终端统一打这里，按分区表把成交上报转给负责的中继节点
func main() {
	cfg := config.Load()

	cache := gateway.NewPartitionTableCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cache.WatchPartitionTable(ctx, cfg.ConsulAddr, partitionTableKey)

	client := &http.Client{Timeout: 5 * time.Second}

	h := hertzServer.Default(hertzServer.WithHostPorts(cfg.GatewayAddr))
	proxy := func(c context.Context, rc *app.RequestContext) {
		body := rc.Request.Body()
		var req struct {
			MasterAccountID string `json:"master_account_id"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.MasterAccountID == "" {
			rc.String(400, "master_account_id required")
			return
		}
		worker, ok := cache.LookupWorkerByMaster(req.MasterAccountID)
		if !ok {
			rc.String(503, "no relay node for master %s", req.MasterAccountID)
			return
		}
		url := fmt.Sprintf("http://%s%s", worker, rc.Path())
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			hlog.Errorf("[Gateway] proxy failed, master=%s, worker=%s, err=%v", req.MasterAccountID, worker, err)
			rc.String(502, "relay node unreachable")
			return
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		rc.Data(resp.StatusCode, "application/json", respBody)
	}
	h.POST("/api/trade/open", proxy)
	h.POST("/api/trade/close", proxy)
	h.POST("/api/trade/outcome", proxy)

	hlog.Infof("[Gateway] listening on %s, consul=%s", cfg.GatewayAddr, cfg.ConsulAddr)
	h.Spin()
}
