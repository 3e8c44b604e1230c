package service

import (
	"encoding/json"
	"sync"

	"copytrade-hertz/biz/dal/rocksdb"
	"copytrade-hertz/biz/model"
)

// RocksSpool RocksDB 落盘的离线指令补偿队列
// 节点重启后 All 能把未投递的指令捞回来
type RocksSpool struct {
	mu    sync.Mutex
	cache map[string]*rocksdb.SpooledInstruction // 上次 All 的快照，MarkRetry 用
}

func NewRocksSpool() *RocksSpool {
	return &RocksSpool{cache: make(map[string]*rocksdb.SpooledInstruction)}
}

func (s *RocksSpool) Save(instructionID, slaveAccountID string, instr *model.CopyInstruction) error {
	return rocksdb.SaveInstruction(instructionID, slaveAccountID, instr)
}

func (s *RocksSpool) All() (map[string]*model.CopyInstruction, map[string]int, error) {
	spooled, err := rocksdb.GetAllInstructions()
	if err != nil {
		return nil, nil, err
	}
	instrs := make(map[string]*model.CopyInstruction, len(spooled))
	retries := make(map[string]int, len(spooled))
	s.mu.Lock()
	s.cache = spooled
	s.mu.Unlock()
	for id, sp := range spooled {
		var instr model.CopyInstruction
		if err := json.Unmarshal(sp.InstructionJSON, &instr); err != nil {
			continue
		}
		instr.SlaveAccountID = sp.SlaveAccountID
		instrs[id] = &instr
		retries[id] = sp.RetryCount
	}
	return instrs, retries, nil
}

func (s *RocksSpool) MarkRetry(instructionID string) error {
	s.mu.Lock()
	sp, ok := s.cache[instructionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return rocksdb.UpdateInstructionRetry(instructionID, sp)
}

func (s *RocksSpool) Delete(instructionID string) error {
	s.mu.Lock()
	delete(s.cache, instructionID)
	s.mu.Unlock()
	return rocksdb.DeleteInstruction(instructionID)
}
