package transfer

import (
	"context"
	"log/slog"
	"time"

	"s3batch/pkg/state"
	"s3batch/pkg/transport"
	"s3batch/pkg/ui"
)

// Executor 负责按计划顺序驱动每个条目走完状态机
type Executor struct {
	Transport transport.Transport
	Auth      transport.Authenticator
	Policy    RetryPolicy
	Verify    bool
	Logger    *slog.Logger
	Progress  ui.Progress
	// Persist 在每次状态变更后被调用，把批次写回状态存储
	Persist func(*state.TransferBatch) error
	// Sleep 为重试等待注入点，nil 时使用可取消的默认实现
	Sleep func(ctx context.Context, d time.Duration) error
}

// Execute 顺序处理批次中所有待执行条目。
// 单个条目的失败不会中断批次；返回非 nil 仅发生在认证失败或取消时。
func (e *Executor) Execute(ctx context.Context, batch *state.TransferBatch) error {
	var executable []*state.TransferItem
	for _, item := range batch.Items {
		if item.Status == state.StatusPending || item.Status == state.StatusFailedRetryable {
			executable = append(executable, item)
		}
	}
	if len(executable) == 0 {
		return nil
	}
	if err := e.ensureAuth(ctx); err != nil {
		return err
	}

	e.Progress.Start(len(executable))
	defer e.Progress.Finish()
	for idx, item := range executable {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.runItem(ctx, batch, item, idx+1, len(executable)); err != nil {
			return err
		}
	}
	return nil
}

// runItem 驱动单个条目：传输、校验、按策略重试，直到到达终态。
// 条目未到终态前批次不会推进到下一个条目。
func (e *Executor) runItem(ctx context.Context, batch *state.TransferBatch, item *state.TransferItem, index, total int) error {
	for {
		item.Status = state.StatusInProgress
		e.save(batch)
		e.Progress.StartItem(index, total, item.Target, item.SizeBytes)

		err := e.Transport.Copy(ctx, item.Source, item.Target, func(sample transport.ProgressSample) {
			item.BytesTransferred = sample.BytesDone
			e.Progress.Sample(sample.BytesDone, sample.TotalBytes, sample.At)
		})
		if err == nil && e.Verify && batch.Direction == state.DirectionUpload {
			item.Status = state.StatusVerifying
			e.save(batch)
			_, err = verifySize(ctx, e.Transport, item)
		}
		if err == nil {
			// attempts 统计实际发起的传输次数，成功的这一次也计入
			item.Attempts++
			item.Status = state.StatusCompleted
			e.save(batch)
			e.Progress.FinishItem()
			e.Logger.Info("传输完成", "target", item.Target, "size", item.SizeBytes, "attempts", item.Attempts)
			return nil
		}

		if ctx.Err() != nil {
			// 用户中断：保留尝试次数，条目保持可重试以便下次续传
			item.Status = state.StatusFailedRetryable
			e.save(batch)
			e.Logger.Warn("传输被中断，批次可续传", "target", item.Target)
			return ctx.Err()
		}

		item.Attempts++
		item.LastError = err.Error()
		if !e.Policy.IsRetryable(item.Attempts) {
			item.Status = state.StatusFailed
			e.save(batch)
			e.Logger.Error("重试次数耗尽，条目失败", "target", item.Target, "attempts", item.Attempts, "err", err)
			return nil
		}
		item.Status = state.StatusFailedRetryable
		e.save(batch)
		delay := e.Policy.BackoffDelay(item.Attempts)
		e.Logger.Warn("传输失败，等待重试", "target", item.Target, "attempts", item.Attempts, "delay", delay, "err", err)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (e *Executor) ensureAuth(ctx context.Context) error {
	if e.Auth == nil {
		return nil
	}
	ok, err := e.Auth.Check(ctx)
	if err != nil {
		return &transport.AuthError{Err: err}
	}
	if ok {
		return nil
	}
	e.Logger.Info("尚未认证，执行登录")
	if err := e.Auth.Login(ctx); err != nil {
		return err
	}
	ok, err = e.Auth.Check(ctx)
	if err != nil || !ok {
		return &transport.AuthError{Err: err}
	}
	return nil
}

func (e *Executor) save(batch *state.TransferBatch) {
	if e.Persist == nil {
		return
	}
	if err := e.Persist(batch); err != nil {
		e.Logger.Warn("写入批次状态失败", "err", err)
	}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
