package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"copytrade-hertz/biz/model"
	"copytrade-hertz/config"

	"github.com/kr/pretty"
	"github.com/segmentio/kafka-go"
)

// 排障工具：直接消费成交流水 topic，人读格式打印
// 环境变量见 config 包，master 过滤用 -master
func main() {
	master := flag.String("master", "", "只看某个 master 账户")
	raw := flag.Bool("raw", false, "打印原始 JSON")
	flag.Parse()

	cfg := config.Load()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: "journaltail",
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	fmt.Printf("tailing %s @ %v\n", cfg.KafkaTopic, cfg.KafkaBrokers)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("read: %v", err)
		}
		if *master != "" && string(msg.Key) != *master {
			continue
		}
		if *raw {
			fmt.Printf("%s %s\n", msg.Key, msg.Value)
			continue
		}
		var trade model.LiveTrade
		if err := json.Unmarshal(msg.Value, &trade); err != nil {
			fmt.Printf("%s <unparseable: %v>\n", msg.Key, err)
			continue
		}
		pretty.Printf("offset=%d %# v\n", msg.Offset, trade)
	}
}
