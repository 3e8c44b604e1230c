package engine

import (
	"bytes"
	"sync"

	"copytrade-hertz/biz/model"

	"github.com/panjf2000/ants/v2"
)

var BufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

var BroadcastPool *ants.Pool

func InitBroadcastPool(size int) error {
	pool, err := ants.NewPool(size)
	if err != nil {
		return err
	}
	BroadcastPool = pool
	return nil
}

// Relayer 中继引擎对外接口，接入层只看见它
type Relayer interface {
	Submit(trade *model.LiveTrade)
	SubmitClose(trade *model.LiveTrade)
}

// Broadcaster 按用户广播回调，同一用户所有会话都收到
type Broadcaster func(userID string, msg []byte)
