package router

import (
	"math/rand"
	"time"
)

// backoffDelay 计算第 attempt 次重试前的等待时间。
// 指数退避并叠加抖动，上限封顶，attempt 从 1 开始。
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 8 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	// 2^(attempt-1)，提前封顶避免位移溢出。
	shift := attempt - 1
	if shift > 20 {
		return max
	}

	delay := base * time.Duration(1<<shift)
	if delay > max {
		delay = max
	}

	// 抖动取 [delay/2, delay)，避免多方同时重试。
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
