package rocksdb

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/tecbot/gorocksdb"
)

// SpooledInstruction 离线 slave 的待投递指令
// InstructionJSON: 原始指令JSON
// RetryCount: 重试次数
// LastRetryTime: 上次重试时间戳（秒）
type SpooledInstruction struct {
	InstructionJSON json.RawMessage `json:"instruction_json"`
	SlaveAccountID  string          `json:"slave_account_id"`
	RetryCount      int             `json:"retry_count"`
	LastRetryTime   int64           `json:"last_retry_time"`
}

const MaxRetryCount = 10 // 最大重试次数，可通过配置覆盖

var (
	spoolDB     *gorocksdb.DB
	spoolDBOnce sync.Once
	spoolDBPath = "data/instruction_spool"
)

// Init 初始化RocksDB实例
func Init(path string) error {
	var err error
	spoolDBOnce.Do(func() {
		if path != "" {
			spoolDBPath = path
		} else {
			if envPath := os.Getenv("INSTRUCTION_SPOOL_PATH"); envPath != "" {
				spoolDBPath = envPath
			}
		}
		opts := gorocksdb.NewDefaultOptions()
		opts.SetCreateIfMissing(true)
		spoolDB, err = gorocksdb.OpenDb(opts, spoolDBPath)
	})
	if err != nil {
		hlog.Errorf("[RocksDB] 初始化失败: %v", err)
		return err
	}
	hlog.Infof("[RocksDB] 指令补偿DB初始化成功, path=%s", spoolDBPath)
	return nil
}

// SaveInstruction 写入待投递指令
func SaveInstruction(instructionID, slaveAccountID string, instruction interface{}) error {
	wo := gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	instrJSON, err := json.Marshal(instruction)
	if err != nil {
		return err
	}
	sp := SpooledInstruction{
		InstructionJSON: instrJSON,
		SlaveAccountID:  slaveAccountID,
		RetryCount:      0,
		LastRetryTime:   time.Now().Unix(),
	}
	val, err := json.Marshal(sp)
	if err != nil {
		return err
	}
	return spoolDB.Put(wo, []byte(instructionID), val)
}

// UpdateInstructionRetry 更新重试次数和时间
func UpdateInstructionRetry(instructionID string, sp *SpooledInstruction) error {
	wo := gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	sp.RetryCount++
	sp.LastRetryTime = time.Now().Unix()
	val, err := json.Marshal(sp)
	if err != nil {
		return err
	}
	return spoolDB.Put(wo, []byte(instructionID), val)
}

// GetAllInstructions 遍历所有待投递指令
func GetAllInstructions() (map[string]*SpooledInstruction, error) {
	ro := gorocksdb.NewDefaultReadOptions()
	defer ro.Destroy()
	it := spoolDB.NewIterator(ro)
	defer it.Close()
	result := make(map[string]*SpooledInstruction)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		key := string(it.Key().Data())
		val := make([]byte, len(it.Value().Data()))
		copy(val, it.Value().Data())
		var sp SpooledInstruction
		if err := json.Unmarshal(val, &sp); err == nil {
			result[key] = &sp
		}
		it.Key().Free()
		it.Value().Free()
	}
	return result, nil
}

// DeleteInstruction 投递成功后删除
func DeleteInstruction(instructionID string) error {
	wo := gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	return spoolDB.Delete(wo, []byte(instructionID))
}

// CloseSpoolDB 关闭DB
func CloseSpoolDB() {
	if spoolDB != nil {
		spoolDB.Close()
	}
}
