package conf

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/kr/pretty"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

var (
	conf *Config
	once sync.Once
)

type Config struct {
	Env         string
	Hertz       Hertz       `yaml:"hertz"`
	Postgres    Postgres    `yaml:"postgres"`
	Redis       Redis       `yaml:"redis"`
	Kafka       Kafka       `yaml:"kafka"`
	RelayEngine RelayEngine `yaml:"relay_engine"`
	Registry    Registry    `yaml:"registry"`
	Heartbeat   Heartbeat   `yaml:"heartbeat"`
	Window      Window      `yaml:"window"`
	License     License     `yaml:"license"`
}

type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Username string `yaml:"username"`
	DB       int    `yaml:"db"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Kafka struct {
	Brokers []string          `yaml:"brokers"`
	Topics  map[string]string `yaml:"topics"` // trade_events / copy_instructions / delivery_outcomes / dropped_push
}

type Registry struct {
	RegistryAddress []string `yaml:"registry_address"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
}

// RelayEngine 本节点中继配置
// MasterAccounts 为静态兜底，分区表可用时以分区表为准
type RelayEngine struct {
	NodeID         string `yaml:"node_id"`
	MasterAccounts string `yaml:"master_accounts"` // 逗号分隔
	RelayPort      int    `yaml:"relay_port"`
	SpoolPath      string `yaml:"spool_path"`
	SpoolMaxRetry  int    `yaml:"spool_max_retry"`
}

// Heartbeat 心跳判活配置，单位秒
type Heartbeat struct {
	SweepInterval int `yaml:"sweep_interval" validate:"min=1"`
	OfflineAfter  int `yaml:"offline_after" validate:"min=1"`
	EvictAfter    int `yaml:"evict_after" validate:"min=1"`
}

// Window 用户最近成交窗口大小
type Window struct {
	RecentTradesPerUser int `yaml:"recent_trades_per_user" validate:"min=1"`
}

// License 终端令牌校验服务
type License struct {
	VerifyURL string `yaml:"verify_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type Hertz struct {
	Service         string `yaml:"service"`
	Address         string `yaml:"address"`
	EnablePprof     bool   `yaml:"enable_pprof"`
	EnableGzip      bool   `yaml:"enable_gzip"`
	EnableAccessLog bool   `yaml:"enable_access_log"`
	LogLevel        string `yaml:"log_level"`
	LogFileName     string `yaml:"log_file_name"`
	LogMaxSize      int    `yaml:"log_max_size"`
	LogMaxBackups   int    `yaml:"log_max_backups"`
	LogMaxAge       int    `yaml:"log_max_age"`
	WsPort          string `yaml:"ws_port"`
}

// GetConf gets configuration instance
func GetConf() *Config {
	once.Do(initConf)
	return conf
}

func initConf() {
	prefix := "conf"
	confFileRelPath := filepath.Join(prefix, filepath.Join(GetEnv(), "conf.yaml"))
	content, err := os.ReadFile(confFileRelPath)
	if err != nil {
		panic(err)
	}

	conf = new(Config)
	err = yaml.Unmarshal(content, conf)
	if err != nil {
		hlog.Error("parse yaml error - %v", err)
		panic(err)
	}
	if err := validator.Validate(conf); err != nil {
		hlog.Error("validate config error - %v", err)
		panic(err)
	}

	conf.Env = GetEnv()

	pretty.Printf("%+v\n", conf)
}

func GetEnv() string {
	e := os.Getenv("GO_ENV")
	if len(e) == 0 {
		return "test"
	}
	return e
}

func LogLevel() hlog.Level {
	level := GetConf().Hertz.LogLevel
	switch level {
	case "trace":
		return hlog.LevelTrace
	case "debug":
		return hlog.LevelDebug
	case "info":
		return hlog.LevelInfo
	case "notice":
		return hlog.LevelNotice
	case "warn":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	case "fatal":
		return hlog.LevelFatal
	default:
		return hlog.LevelInfo
	}
}
