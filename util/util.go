package util

import (
	"errors"
	"sync"

	"github.com/sony/sonyflake"
)

var (
	sonyFlake *sonyflake.Sonyflake
	once      sync.Once
)

// InitSonyFlake 初始化 Snowflake 实例
// 容器里没有私网 IPv4 时默认的机器号推导会失败，兜底用固定机器号
func InitSonyFlake() error {
	once.Do(func() {
		sf := sonyflake.NewSonyflake(sonyflake.Settings{})
		if sf == nil {
			sf = sonyflake.NewSonyflake(sonyflake.Settings{
				MachineID: func() (uint16, error) { return 1, nil },
			})
		}
		sonyFlake = sf
	})
	if sonyFlake == nil {
		return errors.New("sonyflake init failed")
	}
	return nil
}

// GenerateTradeID 生成全局唯一成交ID
func GenerateTradeID() (uint64, error) {
	if err := InitSonyFlake(); err != nil {
		return 0, err
	}
	return sonyFlake.NextID()
}
