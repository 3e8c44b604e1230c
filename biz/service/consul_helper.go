package service

import (
	"fmt"

	"github.com/hashicorp/consul/api"
)

// ConsulHelper 封装 Consul 注册与发现
// 使用前请确保 Consul agent 已启动

type ConsulHelper struct {
	client *api.Client
}

// NewConsulHelper 创建 Consul 客户端
func NewConsulHelper(addr string) (*ConsulHelper, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	cli, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ConsulHelper{client: cli}, nil
}

// NewConsulHelperWithAddrs 支持多个 Consul 地址高可用
func NewConsulHelperWithAddrs(addrs []string) (*ConsulHelper, error) {
	var lastErr error
	for _, addr := range addrs {
		cfg := api.DefaultConfig()
		cfg.Address = addr
		cli, err := api.NewClient(cfg)
		if err == nil {
			// 尝试健康检查
			_, errPing := cli.Agent().Self()
			if errPing == nil {
				return &ConsulHelper{client: cli}, nil
			}
			lastErr = errPing
		} else {
			lastErr = err
		}
	}
	return nil, fmt.Errorf("all consul addresses failed: %v", lastErr)
}

// RegisterRelayNode 注册中继节点到 Consul
// nodeID: 唯一节点ID，masters: 该节点负责的 master 账户列表
func (c *ConsulHelper) RegisterRelayNode(nodeID string, masters []string, port int) error {
	reg := &api.AgentServiceRegistration{
		ID:   nodeID,
		Name: "copy_relay",
		Port: port,
		Tags: masters,
		Check: &api.AgentServiceCheck{
			TCP:      fmt.Sprintf("127.0.0.1:%d", port),
			Interval: "10s",
			Timeout:  "2s",
		},
	}
	return c.client.Agent().ServiceRegister(reg)
}

// DiscoverRelayNode 查询负责某 master 的中继节点
func (c *ConsulHelper) DiscoverRelayNode(masterAccountID string) ([]*api.AgentService, error) {
	services, err := c.client.Agent().Services()
	if err != nil {
		return nil, err
	}
	var result []*api.AgentService
	for _, svc := range services {
		if svc.Service == "copy_relay" {
			for _, tag := range svc.Tags {
				if tag == masterAccountID {
					result = append(result, svc)
				}
			}
		}
	}
	return result, nil
}

// Client 返回 consul client
func (c *ConsulHelper) Client() *api.Client {
	return c.client
}
