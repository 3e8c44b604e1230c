package model

// Partition 表示一个中继分区
// ID: 分区唯一标识
// Masters: 当前分区负责的 master 账户列表
// Workers: 该分区的中继节点地址列表
type Partition struct {
	ID      string   `json:"id"`
	Masters []string `json:"masters"`
	Workers []string `json:"workers"`
}

// PartitionTable 维护 master 账户到分区的映射
// Key: masterAccountID, Value: 分区ID列表
type PartitionTable struct {
	MasterToPartition map[string][]string   `json:"master_to_partition"`
	Partitions        map[string]*Partition `json:"partitions"`
}

// NewPartitionTable 创建空分区表
func NewPartitionTable() *PartitionTable {
	return &PartitionTable{
		MasterToPartition: make(map[string][]string),
		Partitions:        make(map[string]*Partition),
	}
}

// DeepCopy 全量拷贝，扩缩容改副本再整表发布
func (pt *PartitionTable) DeepCopy() *PartitionTable {
	out := NewPartitionTable()
	for master, pids := range pt.MasterToPartition {
		cp := make([]string, len(pids))
		copy(cp, pids)
		out.MasterToPartition[master] = cp
	}
	for pid, p := range pt.Partitions {
		masters := make([]string, len(p.Masters))
		copy(masters, p.Masters)
		workers := make([]string, len(p.Workers))
		copy(workers, p.Workers)
		out.Partitions[pid] = &Partition{ID: p.ID, Masters: masters, Workers: workers}
	}
	return out
}
