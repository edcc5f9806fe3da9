// Package ratelimit はアクター単位のスライディングウィンドウ型レート制限を提供する。
//
// カウンタは全レプリカから到達可能な共有ストア（Redis）に置く。
// レプリカローカルのカウンタはロードバランス下で制限を過小適用するため、
// ローカル実装はRedis到達不能時の縮退モードとしてのみ使用する。
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision はレート制限判定の結果を表す。
// 拒否時は呼び出し側がバックオフできるようクォータ・残量・リセット時刻を含める。
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter はアクターキーごとのレート制限判定インターフェース。
type Limiter interface {
	// Allow はキーに対する1リクエストの可否を判定する。
	// limitはwindowあたりの許容リクエスト数。
	Allow(ctx context.Context, key string, limit int, window time.Duration) Decision
}

// localEntry はキーごとのトークンバケットと最終アクセス時刻を保持する。
type localEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter はプロセス内トークンバケットによるレート制限。
// 共有ストアが使えない場合の縮退モード専用で、レプリカ間でカウンタを共有しない。
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewLocal はLocalLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewLocal() *LocalLimiter {
	l := &LocalLimiter{
		entries:         make(map[string]*localEntry),
		cleanupInterval: 5 * time.Minute,
		stopCh:          make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *LocalLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow はキーに対する1リクエストの可否を判定する。
// トークンバケットによる近似で、Remainingは現在のトークン数から算出する。
func (l *LocalLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit),
		}
		l.entries[key] = entry
	}
	entry.lastAccess = time.Now()
	l.mu.Unlock()

	allowed := entry.limiter.Allow()

	remaining := int(entry.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(window),
	}
}

// EntryCount は現在管理されているエントリ数を返す。テストおよびメトリクス用。
func (l *LocalLimiter) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がcleanupIntervalの2倍を超えたエントリを削除する。
func (l *LocalLimiter) cleanup() {
	ttl := l.cleanupInterval * 2
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.entries {
		if now.Sub(entry.lastAccess) > ttl {
			delete(l.entries, key)
		}
	}
}
