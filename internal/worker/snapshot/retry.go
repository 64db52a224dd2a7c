package snapshot

import "time"

const (
	// initialRetryDelay は出力失敗後の初回再試行までの遅延。
	initialRetryDelay = 30 * time.Second
	// maxRetryDelay は再試行遅延の上限。
	maxRetryDelay = 30 * time.Minute
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回30秒、2倍ずつ増加、最大30分。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// nextDelay は次回出力までの待ち時間を返す。
// 成功時（failures=0）はinterval、失敗時はバックオフ遅延とintervalの短い方。
func nextDelay(interval time.Duration, failures int) time.Duration {
	if failures == 0 {
		return interval
	}
	if backoff := CalculateBackoff(failures - 1); backoff < interval {
		return backoff
	}
	return interval
}
