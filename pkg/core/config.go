package core

import (
	"fmt"
	"io"

	"s3batch/pkg/state"
	"s3batch/pkg/transfer"
	"s3batch/pkg/transport"
)

// EngineConfig 表示一次批次任务的全部配置，由调用方显式传入，
// 引擎内部不持有任何进程级可变状态
type EngineConfig struct {
	Direction state.Direction
	// Sources 上传时为本地文件列表，下载时为 s3://bucket/key 列表
	Sources []string
	// SourceDir 上传时的递归扫描根目录，与 Sources 二选一
	SourceDir string
	// RemotePrefix 下载时的远端列举前缀 s3://bucket/prefix，与 Sources 二选一
	RemotePrefix string
	// Destination 上传时为 s3://bucket/prefix，下载时为本地目录
	Destination string
	Includes    []string
	Excludes    []string
	DryRun      bool
	Verify      bool
	NoResume    bool
	CleanState  bool
	KeepState   bool
	NoProgress  bool
	// MaxRetries 为 0 时使用默认策略
	MaxRetries int
	Profile    string
	LogLevel   string
	LogFile    string
	// StateDir 为空时使用默认状态目录
	StateDir string
	// Out 为空时输出到标准输出
	Out io.Writer
}

// Validate 进行基础校验并填充默认值
func (c *EngineConfig) Validate() error {
	switch c.Direction {
	case state.DirectionUpload, state.DirectionDownload:
	default:
		return fmt.Errorf("方向必须为 upload 或 download")
	}
	if c.Destination == "" {
		return fmt.Errorf("目标前缀不能为空")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries 不能为负数")
	}
	if c.Direction == state.DirectionUpload {
		if _, _, err := transport.ParseS3URI(c.Destination); err != nil {
			return fmt.Errorf("上传目标必须为 s3 路径: %w", err)
		}
		if (len(c.Sources) == 0) == (c.SourceDir == "") {
			return fmt.Errorf("上传必须且只能指定文件列表或目录之一")
		}
	} else {
		if (len(c.Sources) == 0) == (c.RemotePrefix == "") {
			return fmt.Errorf("下载必须且只能指定 key 列表或远端前缀之一")
		}
		if c.RemotePrefix != "" {
			if _, _, err := transport.ParseS3URI(c.RemotePrefix); err != nil {
				return fmt.Errorf("远端前缀必须为 s3 路径: %w", err)
			}
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func (c *EngineConfig) retryPolicy() transfer.RetryPolicy {
	policy := transfer.DefaultRetryPolicy()
	if c.MaxRetries > 0 {
		policy.MaxRetries = c.MaxRetries
	}
	return policy
}
