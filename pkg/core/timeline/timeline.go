// Package timeline 由执行日志重建节点级时间线
package timeline

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// 节点状态
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	labelRe    = regexp.MustCompile(`^Node running: \[(.*)\] \((.*)\)$`)
	readRe     = regexp.MustCompile(`^Chunk \d+: (\d+) rows read$`)
	totalRe    = regexp.MustCompile(`\(total: (\d+)\)`)
	affectedRe = regexp.MustCompile(`Affected rows: (-?\d+)`)
)

// NodeEntry 单个节点的时间线条目（对外导出）
type NodeEntry struct {
	NodeID          string    `json:"node_id"`
	NodeLabel       string    `json:"node_label"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
	RowCount        int64     `json:"row_count"`
}

// ExecutionTimeline 执行时间线（对外导出）
type ExecutionTimeline struct {
	ExecutionID          string      `json:"execution_id"`
	StartedAt            *time.Time  `json:"started_at"`
	FinishedAt           *time.Time  `json:"finished_at"`
	TotalDurationSeconds float64     `json:"total_duration_seconds"`
	Nodes                []NodeEntry `json:"nodes"`
}

type nodeAcc struct {
	entry    NodeEntry
	isDest   bool
	maxTotal int64
	hasTotal bool
	readSum  int64
	hasRead  bool
	affected int64
	hasAff   bool
}

// Build 按node_id分组日志重建时间线
// 起止时间取节点首末日志；行数：目标节点取 "(total: N)" 的最大值，
// 其次为各块读取行数之和，再次为SQL受影响行数；任一error级日志即为failed
func Build(exec *storage.Execution, logs []*storage.ExecutionLog) *ExecutionTimeline {
	tl := &ExecutionTimeline{
		ExecutionID: exec.ID,
		StartedAt:   exec.StartedAt,
		FinishedAt:  exec.FinishedAt,
		Nodes:       []NodeEntry{},
	}
	if exec.StartedAt != nil && exec.FinishedAt != nil {
		tl.TotalDurationSeconds = exec.FinishedAt.Sub(*exec.StartedAt).Seconds()
	}

	byNode := make(map[string]*nodeAcc)
	var order []string
	for _, l := range logs {
		if l.NodeID == "" {
			continue
		}
		acc, ok := byNode[l.NodeID]
		if !ok {
			acc = &nodeAcc{entry: NodeEntry{
				NodeID:    l.NodeID,
				NodeLabel: l.NodeID,
				StartTime: l.CreatedAt,
				EndTime:   l.CreatedAt,
				Status:    StatusSuccess,
			}}
			byNode[l.NodeID] = acc
			order = append(order, l.NodeID)
		}
		if l.CreatedAt.Before(acc.entry.StartTime) {
			acc.entry.StartTime = l.CreatedAt
		}
		if l.CreatedAt.After(acc.entry.EndTime) {
			acc.entry.EndTime = l.CreatedAt
		}
		if l.Level == storage.LevelError {
			acc.entry.Status = StatusFailed
		}
		acc.observe(l.Message)
	}

	for _, id := range order {
		acc := byNode[id]
		e := acc.entry
		e.DurationSeconds = e.EndTime.Sub(e.StartTime).Seconds()
		e.RowCount = acc.rowCount()
		tl.Nodes = append(tl.Nodes, e)
	}
	sort.SliceStable(tl.Nodes, func(i, j int) bool {
		return tl.Nodes[i].StartTime.Before(tl.Nodes[j].StartTime)
	})
	return tl
}

func (a *nodeAcc) observe(msg string) {
	if m := labelRe.FindStringSubmatch(msg); m != nil {
		a.entry.NodeLabel = m[1]
		a.isDest = m[2] == "destination"
		return
	}
	if m := readRe.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		a.readSum += n
		a.hasRead = true
		return
	}
	if m := totalRe.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		if !a.hasTotal || n > a.maxTotal {
			a.maxTotal = n
		}
		a.hasTotal = true
		return
	}
	if m := affectedRe.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		a.affected = n
		a.hasAff = true
	}
}

func (a *nodeAcc) rowCount() int64 {
	switch {
	case a.isDest && a.hasTotal:
		return a.maxTotal
	case a.hasRead:
		return a.readSum
	case a.hasAff:
		return a.affected
	}
	return 0
}
