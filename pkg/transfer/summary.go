package transfer

import (
	"fmt"
	"io"

	"github.com/inhies/go-bytesize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"s3batch/pkg/state"
)

// Summary 汇总批次的最终结果
type Summary struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Pending   int
	Bytes     int64
	Failures  []Failure
}

// Failure 描述一个失败条目
type Failure struct {
	Target   string
	Attempts int
	Reason   string
}

// Summarize 根据条目终态统计批次结果
func Summarize(batch *state.TransferBatch) Summary {
	counts := lo.CountValuesBy(batch.Items, func(item *state.TransferItem) state.ItemStatus {
		return item.Status
	})
	failed := lo.Filter(batch.Items, func(item *state.TransferItem, _ int) bool {
		return item.Status == state.StatusFailed
	})
	completed := lo.Filter(batch.Items, func(item *state.TransferItem, _ int) bool {
		return item.Status == state.StatusCompleted
	})
	return Summary{
		Total:     len(batch.Items),
		Completed: counts[state.StatusCompleted],
		Failed:    counts[state.StatusFailed],
		Skipped:   counts[state.StatusSkipped],
		Pending:   len(batch.Items) - counts[state.StatusCompleted] - counts[state.StatusFailed] - counts[state.StatusSkipped],
		Bytes: lo.SumBy(completed, func(item *state.TransferItem) int64 {
			return item.SizeBytes
		}),
		Failures: lo.Map(failed, func(item *state.TransferItem, _ int) Failure {
			return Failure{Target: item.Target, Attempts: item.Attempts, Reason: item.LastError}
		}),
	}
}

// OK 返回批次是否整体成功，存在失败条目即为失败
func (s Summary) OK() bool {
	return s.Failed == 0
}

// Render 输出批次汇总，失败条目以表格形式列出
func (s Summary) Render(w io.Writer) {
	fmt.Fprintf(w, "完成 %d，失败 %d，跳过 %d，共 %d 个文件（%v）\n",
		s.Completed, s.Failed, s.Skipped, s.Total, bytesize.New(float64(s.Bytes)))
	if len(s.Failures) == 0 {
		return
	}
	tb := table.NewWriter()
	tb.SetOutputMirror(w)
	tb.AppendHeader(table.Row{"Target", "Attempts", "Last Error"})
	for _, f := range s.Failures {
		tb.AppendRow(table.Row{f.Target, f.Attempts, f.Reason})
	}
	tb.Render()
}
