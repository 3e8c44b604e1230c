package redis

import (
	"context"
	"strconv"

	"copytrade-hertz/conf"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

func Init() {
	Client = redis.NewClient(&redis.Options{
		Addr:     conf.GetConf().Redis.Address,
		Username: conf.GetConf().Redis.Username,
		Password: conf.GetConf().Redis.Password,
		DB:       conf.GetConf().Redis.DB,
	})
	if err := Client.Ping(context.Background()).Err(); err != nil {
		panic(err)
	}
}

// 键前缀约定
const (
	KeyDedupePrefix    = "dedupe:"    // dedupe:<master>:<ticket>
	KeyRelationsPrefix = "relations:" // relations:<master> 活跃关系缓存
	KeyAccountsPrefix  = "accounts:"  // accounts:<user> 在线账户快照
	KeyEntitledPrefix  = "entitled:"  // entitled:<provider>:<user> 订阅资格标记
)

// DedupeKey 入链去重键
func DedupeKey(masterAccountID string, ticket int64) string {
	return KeyDedupePrefix + masterAccountID + ":" + strconv.FormatInt(ticket, 10)
}
