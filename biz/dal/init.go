package dal

import (
	"copytrade-hertz/biz/dal/kafka"
	"copytrade-hertz/biz/dal/pg"
	"copytrade-hertz/biz/dal/redis"
	"copytrade-hertz/biz/dal/rocksdb"
	"copytrade-hertz/conf"
)

func Init() {
	pg.Init()
	redis.Init()
	kafka.Init()
	if err := rocksdb.Init(conf.GetConf().RelayEngine.SpoolPath); err != nil {
		panic(err)
	}
}
