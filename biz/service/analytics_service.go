package service

import (
	"math"
	"sort"

	"copytrade-hertz/biz/model"
)

// AccountStat 单账户维度的跟单统计
type AccountStat struct {
	AccountID       string  `json:"account_id"`
	AccountName     string  `json:"account_name,omitempty"`
	Copies          int     `json:"copies"`
	Success         int     `json:"success"`
	Failed          int     `json:"failed"`
	Pending         int     `json:"pending"`
	SuccessRate     float64 `json:"success_rate"`
	AvgExecutionMs  float64 `json:"avg_execution_ms"`  // 只统计已回报耗时的记录
	AvgSlippagePips float64 `json:"avg_slippage_pips"` // 滑点绝对值均值
}

// Summary 看板汇总
type Summary struct {
	OnlineMasters  int           `json:"online_masters"`
	OfflineMasters int           `json:"offline_masters"`
	OnlineSlaves   int           `json:"online_slaves"`
	OfflineSlaves  int           `json:"offline_slaves"`
	TotalTrades    int           `json:"total_trades"`
	TotalCopies    int           `json:"total_copies"`
	SuccessRate    float64       `json:"success_rate"`
	PerMaster      []AccountStat `json:"per_master"`
	PerSlave       []AccountStat `json:"per_slave"`
}

type statAgg struct {
	stat      AccountStat
	execTotal float64
	execCount int
	slipTotal float64
	slipCount int
}

// AnalyticsService 看板统计，全部基于内存态现算，无副作用
type AnalyticsService struct {
	registry *ConnectionRegistry
	window   *TradeWindow
	tracker  *DeliveryTracker
}

func NewAnalyticsService(registry *ConnectionRegistry, window *TradeWindow, tracker *DeliveryTracker) *AnalyticsService {
	return &AnalyticsService{registry: registry, window: window, tracker: tracker}
}

// 追踪中的 trade 状态可能还在落定，必须走锁内快照
// 已出追踪的没有写方，直接读
func (a *AnalyticsService) statusesOf(t *model.LiveTrade) []model.SlaveStatus {
	if a.tracker != nil {
		if view, ok := a.tracker.StatusView(t.TradeID); ok {
			return view
		}
	}
	out := make([]model.SlaveStatus, 0, len(t.SlaveStatuses))
	for _, st := range t.SlaveStatuses {
		out = append(out, *st)
	}
	return out
}

// Summarize 汇总某用户的在线状态与跟单质量
// 成功率 = success / (success + failed + pending)，无数据为 0，绝不出 NaN
func (a *AnalyticsService) Summarize(userID string) *Summary {
	sum := &Summary{}

	for _, acct := range a.registry.ListByUser(userID) {
		online := acct.Status == model.StatusOnline
		switch acct.Role {
		case model.RoleMaster:
			if online {
				sum.OnlineMasters++
			} else {
				sum.OfflineMasters++
			}
		case model.RoleSlave:
			if online {
				sum.OnlineSlaves++
			} else {
				sum.OfflineSlaves++
			}
		}
	}

	trades := a.window.Recent(userID, 0)
	sum.TotalTrades = len(trades)

	masters := make(map[string]*statAgg)
	slaves := make(map[string]*statAgg)

	totalSuccess := 0
	for _, t := range trades {
		m, ok := masters[t.MasterAccountID]
		if !ok {
			m = &statAgg{stat: AccountStat{AccountID: t.MasterAccountID}}
			masters[t.MasterAccountID] = m
		}
		for _, st := range a.statusesOf(t) {
			sl, ok := slaves[st.SlaveAccountID]
			if !ok {
				sl = &statAgg{stat: AccountStat{AccountID: st.SlaveAccountID, AccountName: st.SlaveAccountName}}
				slaves[st.SlaveAccountID] = sl
			}
			sum.TotalCopies++
			countStatus(&m.stat, st.Status)
			countStatus(&sl.stat, st.Status)
			if st.Status == model.CopySuccess {
				totalSuccess++
			}
			if st.ExecutionTimeMs != nil {
				m.execTotal += float64(*st.ExecutionTimeMs)
				m.execCount++
				sl.execTotal += float64(*st.ExecutionTimeMs)
				sl.execCount++
			}
			if st.SlippagePips != nil {
				m.slipTotal += math.Abs(*st.SlippagePips)
				m.slipCount++
				sl.slipTotal += math.Abs(*st.SlippagePips)
				sl.slipCount++
			}
		}
	}

	if sum.TotalCopies > 0 {
		sum.SuccessRate = float64(totalSuccess) / float64(sum.TotalCopies)
	}
	sum.PerMaster = finishStats(masters)
	sum.PerSlave = finishStats(slaves)
	return sum
}

func countStatus(stat *AccountStat, status string) {
	stat.Copies++
	switch status {
	case model.CopySuccess:
		stat.Success++
	case model.CopyFailed:
		stat.Failed++
	default:
		stat.Pending++
	}
}

func finishStats(m map[string]*statAgg) []AccountStat {
	out := make([]AccountStat, 0, len(m))
	for _, g := range m {
		if g.stat.Copies > 0 {
			g.stat.SuccessRate = float64(g.stat.Success) / float64(g.stat.Copies)
		}
		if g.execCount > 0 {
			g.stat.AvgExecutionMs = g.execTotal / float64(g.execCount)
		}
		if g.slipCount > 0 {
			g.stat.AvgSlippagePips = g.slipTotal / float64(g.slipCount)
		}
		out = append(out, g.stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
