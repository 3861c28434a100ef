package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/inhies/go-bytesize"

	"s3batch/pkg/logging"
	"s3batch/pkg/state"
	"s3batch/pkg/transfer"
	"s3batch/pkg/transport"
	"s3batch/pkg/ui"
)

// Run 执行一次批次任务，传输通过外部 aws 命令完成
func Run(ctx context.Context, cfg *EngineConfig) error {
	cli := transport.NewAWSCLI(cfg.Profile)
	return RunWith(ctx, cfg, cli, cli)
}

// RunWith 以注入的传输器与认证器执行批次：
// 计划 → 合并历史状态 → 顺序执行 → 汇总
func RunWith(ctx context.Context, cfg *EngineConfig, tp transport.Transport, auth transport.Authenticator) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	var progress ui.Progress
	stdWriter := out
	if cfg.NoProgress || cfg.DryRun {
		progress = ui.NoopProgress{}
	} else {
		bar := ui.NewBarProgress(out)
		progress = bar
		stdWriter = bar.WrapWriter(out)
	}
	writers := []io.Writer{stdWriter}
	if cfg.LogFile != "" {
		file, err := os.Create(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("创建日志文件失败: %w", err)
		}
		writers = append(writers, file)
	}
	logger, err := logging.New(cfg.LogLevel, writers...)
	if err != nil {
		return err
	}
	defer logger.Close()

	plan, err := BuildPlan(ctx, cfg, tp)
	if err != nil {
		return err
	}
	batch := plan.Batch

	if cfg.DryRun {
		logger.Info("Dry-run 模式，只展示计划",
			"files", plan.TotalFiles, "bytes", bytesize.New(float64(plan.TotalBytes)).String())
		for _, item := range batch.Items {
			if item.Status == state.StatusSkipped {
				logger.Info("计划条目", "target", item.Target, "status", item.Status, "reason", item.Reason)
				continue
			}
			logger.Info("计划条目", "source", item.Source, "target", item.Target, "size", item.SizeBytes)
		}
		return nil
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir, err = state.DefaultDir()
		if err != nil {
			return err
		}
	}
	store := state.NewStore(stateDir)

	if cfg.CleanState {
		if err := store.Clear(batch.ID); err != nil {
			logger.Warn("清理历史状态失败", "err", err)
		} else {
			logger.Info("已清理历史状态", "batch", batch.ID)
		}
	} else if !cfg.NoResume {
		persisted, err := store.Load(batch.ID)
		if err != nil {
			if errors.Is(err, state.ErrCorrupted) {
				logger.Warn("状态文件损坏，按全新批次执行", "err", err)
			} else {
				logger.Warn("读取历史状态失败，按全新批次执行", "err", err)
			}
		}
		if carried := state.Merge(batch, persisted); carried > 0 {
			logger.Info("续传：历史已完成条目不再重传", "carried", carried)
		}
	}
	if err := store.Save(batch); err != nil {
		return err
	}

	executor := transfer.Executor{
		Transport: tp,
		Auth:      auth,
		Policy:    cfg.retryPolicy(),
		Verify:    cfg.Verify,
		Logger:    logger.Logger,
		Progress:  progress,
		Persist:   store.Save,
	}
	execErr := executor.Execute(ctx, batch)
	if execErr != nil {
		logger.Warn("批次提前停止", "err", execErr)
	}

	summary := transfer.Summarize(batch)
	summary.Render(stdWriter)

	// 整批成功后不再保留状态文件；有失败或被中断时保留以便续传
	if execErr == nil && batch.Terminal() && summary.OK() && !cfg.KeepState {
		if err := store.Clear(batch.ID); err != nil {
			logger.Warn("清理状态文件失败", "err", err)
		}
	}
	if execErr != nil {
		return execErr
	}
	if !summary.OK() {
		return fmt.Errorf("%d 个文件传输失败", summary.Failed)
	}
	return nil
}
