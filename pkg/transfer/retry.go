package transfer

import "time"

// RetryPolicy 描述失败重试策略，本身无状态，只做计算
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	DelayCap   time.Duration
}

// DefaultRetryPolicy 返回默认策略：最多重试 3 次，1s 起步、2 倍递增、60s 封顶
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		DelayCap:   60 * time.Second,
	}
}

// IsRetryable 返回第 attempt 次失败之后是否还允许重试
func (p RetryPolicy) IsRetryable(attempt int) bool {
	return attempt <= p.MaxRetries
}

// BackoffDelay 返回第 attempt 次失败之后的等待时长：
// min(base * multiplier^(attempt-1), cap)
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if time.Duration(delay) >= p.DelayCap {
			return p.DelayCap
		}
	}
	d := time.Duration(delay)
	if d > p.DelayCap {
		return p.DelayCap
	}
	return d
}
