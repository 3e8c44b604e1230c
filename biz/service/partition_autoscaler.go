package service

import (
	"context"
	"sync"
	"time"

	"copytrade-hertz/biz/model"
)

// 热点/冷门阈值，单位：每采样周期事件数
const (
	hotMasterThreshold  = 800
	coldMasterThreshold = 5
)

// PartitionMetricsProvider 分区负载采集接口
// 可实现 Prometheus、Consul KV、Redis、本地统计等多种方式

type PartitionMetricsProvider interface {
	// SampleMasterLoads 采样并清零各 master 的周期事件数
	SampleMasterLoads() map[string]int
}

// WorkerLoadProvider worker负载采集接口，支持多种衡量方式
// 可实现分区数、QPS、CPU等多种方式

type WorkerLoadProvider interface {
	GetAllWorkers() []string
	GetWorkerLoad(worker string) int
}

// PartitionAutoScaler 自动扩缩容调度器
// 定期采集 master 负载，热点拆分、冷门合并后整表发布

type PartitionAutoScaler struct {
	pm       *PartitionManager
	metrics  PartitionMetricsProvider
	workers  WorkerLoadProvider
	interval time.Duration
	stopCh   chan struct{}
	lock     sync.Mutex
}

func NewPartitionAutoScaler(pm *PartitionManager, metrics PartitionMetricsProvider, workers WorkerLoadProvider, interval time.Duration) *PartitionAutoScaler {
	return &PartitionAutoScaler{
		pm:       pm,
		metrics:  metrics,
		workers:  workers,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (a *PartitionAutoScaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.scaleIfNeeded()
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		}
	}
}

func (a *PartitionAutoScaler) Stop() {
	close(a.stopCh)
}

// selectIdleWorker 选择负载最低的worker
func (a *PartitionAutoScaler) selectIdleWorker() string {
	workers := a.workers.GetAllWorkers()
	if len(workers) == 0 {
		return ""
	}
	minLoad := a.workers.GetWorkerLoad(workers[0])
	minWorker := workers[0]
	for _, w := range workers[1:] {
		load := a.workers.GetWorkerLoad(w)
		if load < minLoad {
			minLoad = load
			minWorker = w
		}
	}
	return minWorker
}

// scaleIfNeeded 采集 master 负载并自动扩缩容
func (a *PartitionAutoScaler) scaleIfNeeded() {
	a.lock.Lock()
	defer a.lock.Unlock()
	pt := a.pm.GetPartitionTable()
	if pt == nil || pt.Partitions == nil {
		return
	}
	masterLoad := a.metrics.SampleMasterLoads()
	newPT := pt.DeepCopy()

	needUpdateHot := a.splitHotMasters(newPT, masterLoad)
	needUpdateCold := a.mergeColdMasters(newPT, masterLoad)

	if needUpdateHot || needUpdateCold {
		a.pm.UpdatePartitionTable(newPT)
	}
}

// splitHotMasters 热点 master 拆到独立分区
func (a *PartitionAutoScaler) splitHotMasters(newPT *model.PartitionTable, masterLoad map[string]int) bool {
	needUpdate := false
	for pid, p := range newPT.Partitions {
		var hotMasters []string
		for _, m := range p.Masters {
			if masterLoad[m] > hotMasterThreshold {
				hotMasters = append(hotMasters, m)
			}
		}
		if len(hotMasters) == 0 {
			continue
		}
		a.removeMastersFromPartition(p, hotMasters)
		for _, m := range hotMasters {
			a.createHotPartition(newPT, pid, m)
		}
		needUpdate = true
	}
	return needUpdate
}

func (a *PartitionAutoScaler) removeMastersFromPartition(p *model.Partition, mastersToRemove []string) {
	hotSet := make(map[string]struct{})
	for _, m := range mastersToRemove {
		hotSet[m] = struct{}{}
	}
	var remain []string
	for _, m := range p.Masters {
		if _, ok := hotSet[m]; !ok {
			remain = append(remain, m)
		}
	}
	p.Masters = remain
}

func (a *PartitionAutoScaler) createHotPartition(newPT *model.PartitionTable, pid, master string) {
	idleWorker := a.selectIdleWorker()
	newPID := pid + "_hot_" + master + "_" + time.Now().Format("150405")
	newPT.Partitions[newPID] = &model.Partition{
		ID:      newPID,
		Masters: []string{master},
		Workers: []string{idleWorker},
	}
	oldList := newPT.MasterToPartition[master]
	var newList []string
	for _, oldPID := range oldList {
		if oldPID != pid {
			newList = append(newList, oldPID)
		}
	}
	newList = append(newList, newPID)
	newPT.MasterToPartition[master] = newList
}

// mergeColdMasters 冷门 master 合并到一个分区，腾出worker
func (a *PartitionAutoScaler) mergeColdMasters(newPT *model.PartitionTable, masterLoad map[string]int) bool {
	var coldMasters []string
	for master, load := range masterLoad {
		if load < coldMasterThreshold {
			coldMasters = append(coldMasters, master)
		}
	}
	if len(coldMasters) <= 1 {
		return false
	}
	idleWorker := a.selectIdleWorker()
	newPID := "cold_merge_" + time.Now().Format("150405")
	newPT.Partitions[newPID] = &model.Partition{
		ID:      newPID,
		Masters: coldMasters,
		Workers: []string{idleWorker},
	}
	coldSet := make(map[string]struct{})
	for _, m := range coldMasters {
		newPT.MasterToPartition[m] = []string{newPID}
		coldSet[m] = struct{}{}
	}
	for _, p := range newPT.Partitions {
		if p.ID == newPID {
			continue
		}
		var remain []string
		for _, m := range p.Masters {
			if _, ok := coldSet[m]; !ok {
				remain = append(remain, m)
			}
		}
		p.Masters = remain
	}
	return true
}

// RelayLoadMetrics 本地分发引擎计数器实现的负载采集
type RelayLoadMetrics struct {
	Engine *RelayEngine
}

func (m *RelayLoadMetrics) SampleMasterLoads() map[string]int {
	return m.Engine.SampleEventCounts()
}

// PartitionCountWorkerLoad 以分区数为负载衡量的worker采集
type PartitionCountWorkerLoad struct {
	pm     *PartitionManager
	consul *ConsulHelper
}

func NewPartitionCountWorkerLoad(pm *PartitionManager, consul *ConsulHelper) *PartitionCountWorkerLoad {
	return &PartitionCountWorkerLoad{pm: pm, consul: consul}
}

func (w *PartitionCountWorkerLoad) GetAllWorkers() []string {
	services, err := w.consul.Client().Agent().Services()
	if err != nil {
		return nil
	}
	var workers []string
	for _, svc := range services {
		if svc.Service == "copy_relay" {
			workers = append(workers, svc.ID)
		}
	}
	return workers
}

func (w *PartitionCountWorkerLoad) GetWorkerLoad(worker string) int {
	pt := w.pm.GetPartitionTable()
	if pt == nil {
		return 0
	}
	load := 0
	for _, p := range pt.Partitions {
		for _, assigned := range p.Workers {
			if assigned == worker {
				load++
			}
		}
	}
	return load
}
