package model

// 账户角色
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
)

// 在线状态
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ConnectedAccount 已连接的终端账户
// 由 ConnectionRegistry 独占维护，其他模块只读
type ConnectedAccount struct {
	AccountID     string  `json:"account_id"`
	OwnerUserID   string  `json:"owner_user_id"`
	AccountName   string  `json:"account_name"`
	Role          string  `json:"role"`
	Status        string  `json:"status"`
	LastHeartbeat int64   `json:"last_heartbeat"` // 毫秒时间戳
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
}
