package transfer

import (
	"context"
	"errors"
	"fmt"

	"s3batch/pkg/state"
	"s3batch/pkg/transport"
)

// VerificationResult 描述一次大小校验的结果，仅短暂存在于校验流程中
type VerificationResult struct {
	ExpectedSize int64
	ActualSize   int64
	Matched      bool
}

// verifySize 查询远端对象大小并与本地大小比较。
// 不一致按传输失败处理（计入同一个 attempts 计数并参与重试）。
func verifySize(ctx context.Context, tp transport.Transport, item *state.TransferItem) (VerificationResult, error) {
	remote, err := tp.Stat(ctx, item.Target)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return VerificationResult{ExpectedSize: item.SizeBytes},
				fmt.Errorf("size mismatch: remote object missing after upload")
		}
		return VerificationResult{ExpectedSize: item.SizeBytes}, err
	}
	result := VerificationResult{
		ExpectedSize: item.SizeBytes,
		ActualSize:   remote,
		Matched:      remote == item.SizeBytes,
	}
	if !result.Matched {
		return result, fmt.Errorf("size mismatch: local=%d remote=%d", item.SizeBytes, remote)
	}
	return result, nil
}
