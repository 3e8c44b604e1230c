package util

import (
	"strings"

	"copytrade-hertz/conf"
)

// IsLocalRelayNode 判断本节点是否负责该 master 账户（静态配置兜底）
func IsLocalRelayNode(masterAccountID string) bool {
	cfg := conf.GetConf()
	for _, m := range ParseAccounts(cfg.RelayEngine.MasterAccounts) {
		if m == masterAccountID {
			return true
		}
	}
	return false
}

// ParseAccounts 解析逗号分隔的账户列表
func ParseAccounts(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			res = append(res, p)
		}
	}
	return res
}
