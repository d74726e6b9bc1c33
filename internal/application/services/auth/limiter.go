package auth

import (
	"math"
	"sync"
	"time"
)

// LoginLimiter 登录失败滑动窗口限流器。
// 窗口内失败达到上限即封禁,成功登录清除记录。
type LoginLimiter struct {
	maxAttempts int
	window      time.Duration
	block       time.Duration

	mu           sync.Mutex
	attempts     map[string][]time.Time
	blockedUntil map[string]time.Time

	now func() time.Time // 测试注入
}

// NewLoginLimiter 创建限流器,参数低于下限时收敛到下限
func NewLoginLimiter(maxAttempts int, window, block time.Duration) *LoginLimiter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if window < 30*time.Second {
		window = 30 * time.Second
	}
	if block < 30*time.Second {
		block = 30 * time.Second
	}
	return &LoginLimiter{
		maxAttempts:  maxAttempts,
		window:       window,
		block:        block,
		attempts:     make(map[string][]time.Time),
		blockedUntil: make(map[string]time.Time),
		now:          time.Now,
	}
}

// BlockedSeconds 返回剩余封禁秒数,未封禁返回0。向上取整,不提前放行。
func (l *LoginLimiter) BlockedSeconds(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockedSecondsLocked(key)
}

// RegisterFailure 记录一次失败;触发封禁时返回封禁秒数,否则返回0
func (l *LoginLimiter) RegisterFailure(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(key, now)

	l.attempts[key] = append(l.attempts[key], now)
	if len(l.attempts[key]) < l.maxAttempts {
		return 0
	}

	l.blockedUntil[key] = now.Add(l.block)
	delete(l.attempts, key)
	return int(l.block / time.Second)
}

// RegisterSuccess 成功登录,清除该key的全部记录
func (l *LoginLimiter) RegisterSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
	delete(l.blockedUntil, key)
}

func (l *LoginLimiter) blockedSecondsLocked(key string) int {
	now := l.now()
	l.pruneLocked(key, now)

	until, ok := l.blockedUntil[key]
	if !ok {
		return 0
	}
	remaining := until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

func (l *LoginLimiter) pruneLocked(key string, now time.Time) {
	if until, ok := l.blockedUntil[key]; ok && !until.After(now) {
		delete(l.blockedUntil, key)
	}

	attempts, ok := l.attempts[key]
	if !ok {
		return
	}
	cutoff := now.Add(-l.window)
	kept := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, key)
		return
	}
	l.attempts[key] = kept
}
