package state

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"time"
)

// Direction 表示批次的传输方向
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// ItemStatus 表示单个条目的状态机状态
type ItemStatus string

const (
	StatusPending         ItemStatus = "pending"
	StatusInProgress      ItemStatus = "in_progress"
	StatusVerifying       ItemStatus = "verifying"
	StatusCompleted       ItemStatus = "completed"
	StatusFailedRetryable ItemStatus = "failed_retryable"
	StatusFailed          ItemStatus = "failed"
	StatusSkipped         ItemStatus = "skipped"
)

// Terminal 返回该状态是否为终态，终态条目在本次运行中不再变化
func (s ItemStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// TransferItem 表示一次对单个文件的传输操作
type TransferItem struct {
	Source           string     `json:"source"`
	Target           string     `json:"target"`
	SizeBytes        int64      `json:"size_bytes"`
	Status           ItemStatus `json:"status"`
	Attempts         int        `json:"attempts"`
	BytesTransferred int64      `json:"bytes_transferred"`
	LastError        string     `json:"last_error,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}

// TransferBatch 描述共享同一目标前缀与方向的一组条目
type TransferBatch struct {
	ID          string          `json:"id"`
	Direction   Direction       `json:"direction"`
	Destination string          `json:"destination"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []*TransferItem `json:"items"`
}

// NewBatch 创建批次。sources 是用户级的来源标识（显式列表、扫描根目录
// 或列举前缀），不是逐文件展开的结果：目录内容变化不改变批次 ID，
// 历史状态才能按 target 对账到新计划上
func NewBatch(direction Direction, destination string, sources []string, items []*TransferItem) *TransferBatch {
	return &TransferBatch{
		ID:          BatchID(direction, destination, sources),
		Direction:   direction,
		Destination: destination,
		CreatedAt:   time.Now().UTC(),
		Items:       items,
	}
}

// BatchID 根据方向、目标前缀与排好序的来源列表生成稳定标识
func BatchID(direction Direction, destination string, sources []string) string {
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)
	h := sha256.New()
	io.WriteString(h, string(direction))
	io.WriteString(h, "\x00")
	io.WriteString(h, destination)
	for _, src := range sorted {
		io.WriteString(h, "\x00")
		io.WriteString(h, src)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Terminal 返回批次内所有条目是否都已到达终态
func (b *TransferBatch) Terminal() bool {
	for _, item := range b.Items {
		if !item.Status.Terminal() {
			return false
		}
	}
	return true
}

// FindByTarget 按 target 查找条目，批次内 target 唯一
func (b *TransferBatch) FindByTarget(target string) *TransferItem {
	for _, item := range b.Items {
		if item.Target == target {
			return item
		}
	}
	return nil
}

// Merge 把已持久化批次中状态为 Completed 的条目按 target 回填到新计划，
// 其余条目保持新计划的状态；持久化批次中多出的条目被静默丢弃。
// 返回回填的条目数。
func Merge(planned *TransferBatch, persisted *TransferBatch) int {
	if persisted == nil {
		return 0
	}
	carried := 0
	for _, item := range planned.Items {
		old := persisted.FindByTarget(item.Target)
		if old == nil || old.Status != StatusCompleted {
			continue
		}
		if item.Status == StatusSkipped {
			continue
		}
		item.Status = StatusCompleted
		item.Attempts = old.Attempts
		item.BytesTransferred = old.BytesTransferred
		carried++
	}
	return carried
}
