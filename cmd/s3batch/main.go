package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"s3batch/pkg/core"
	"s3batch/pkg/state"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "s3batch 错误: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		direction  string
		sources    []string
		sourceDir  string
		remote     string
		dest       string
		includes   []string
		excludes   []string
		dryRun     bool
		verify     bool
		noResume   bool
		cleanState bool
		keepState  bool
		noProgress bool
		maxRetries int
		profile    string
		logFile    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "s3batch",
		Short: "基于 aws 命令的批量断点续传工具",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := parseDirection(direction)
			if err != nil {
				return err
			}
			cfg := &core.EngineConfig{
				Direction:    dir,
				Sources:      sources,
				SourceDir:    sourceDir,
				RemotePrefix: remote,
				Destination:  dest,
				Includes:     includes,
				Excludes:     excludes,
				DryRun:       dryRun,
				Verify:       verify,
				NoResume:     noResume,
				CleanState:   cleanState,
				KeepState:    keepState,
				NoProgress:   noProgress,
				MaxRetries:   maxRetries,
				Profile:      profile,
				LogFile:      logFile,
				LogLevel:     logLevel,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return core.Run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "D", string(state.DirectionUpload), "传输方向：upload / download")
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "来源文件或 s3 key，可多次指定")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "上传时递归扫描的根目录")
	cmd.Flags().StringVar(&remote, "remote-prefix", "", "下载时列举的远端前缀 s3://bucket/prefix")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "目标前缀（上传为 s3 路径，下载为本地目录）")
	cmd.Flags().StringArrayVar(&includes, "include", nil, "包含模式，可多次指定")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "排除模式，可多次指定")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "演示模式，只展示计划不执行传输")
	cmd.Flags().BoolVar(&verify, "verify", false, "上传后校验远端对象大小")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "忽略历史状态，从头执行")
	cmd.Flags().BoolVar(&cleanState, "clean-state", false, "先清理本批次历史状态再执行")
	cmd.Flags().BoolVar(&keepState, "keep-state", false, "批次完成后保留状态文件")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "禁用进度条显示")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "单文件最大重试次数，0 为默认值 3")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "aws profile")
	cmd.Flags().StringVar(&logFile, "log-file", "", "指定日志文件")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "日志级别：debug / info / warn / error")

	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func parseDirection(val string) (state.Direction, error) {
	switch state.Direction(val) {
	case state.DirectionUpload, state.DirectionDownload:
		return state.Direction(val), nil
	}
	return "", fmt.Errorf("未知传输方向: %s", val)
}
