package service

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
)

var consulHelper *ConsulHelper

// InitConsulHelper 初始化全局 Consul 客户端并注册本节点
func InitConsulHelper(addrs []string, nodeID string, masters []string, port int) error {
	helper, err := NewConsulHelperWithAddrs(addrs)
	if err != nil {
		return err
	}
	consulHelper = helper
	if err := helper.RegisterRelayNode(nodeID, masters, port); err != nil {
		return err
	}
	hlog.Infof("[Consul] relay node registered, node_id=%s, masters=%d, port=%d", nodeID, len(masters), port)
	return nil
}

// GetConsulHelper 取全局 Consul 客户端，未初始化返回 nil
func GetConsulHelper() *ConsulHelper {
	return consulHelper
}

// ForwardTradeToRelayNode 转发成交事件到负责该 master 的中继节点
// path 保持原请求路径，开平仓都走这里
func ForwardTradeToRelayNode(masterAccountID, path string, data []byte) error {
	if consulHelper == nil {
		return fmt.Errorf("consul not initialized")
	}
	nodes, err := consulHelper.DiscoverRelayNode(masterAccountID)
	if err != nil || len(nodes) == 0 {
		return fmt.Errorf("no relay node found for master %s", masterAccountID)
	}
	// 随机选择一个节点实现负载均衡
	idx := rand.Intn(len(nodes))
	url := fmt.Sprintf("http://%s:%d%s", nodes[idx].Address, nodes[idx].Port, path)
	resp, err := httpPost(url, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("remote relay node error: %s", resp.Status)
	}
	return nil
}

// httpPost 简单HTTP POST封装
func httpPost(url string, data []byte) (*http.Response, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequest("POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}
