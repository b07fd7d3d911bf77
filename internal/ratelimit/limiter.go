// internal/ratelimit/limiter.go

// Package ratelimit throttles login and OTP traffic per identifier and per client IP.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Attempt kinds share lockout rules but are counted separately.
const (
	KindLogin     = "login"
	KindOTPVerify = "otp_verify"
)

type Config struct {
	// OTP send limits
	SendCooldown     time.Duration // Minimum time between sends to one identifier
	SendMaxPerHour   int           // Max sends per identifier per hour
	SendMaxIPPerHour int           // Max sends per IP per hour

	// Credential attempt limits (password login, OTP verify)
	AttemptMaxFailures  int           // Failures before lockout
	AttemptLockout      time.Duration // Lockout duration
	AttemptMaxIPPerHour int           // Max attempts per IP per hour

	// Clock for testing (nil uses real time)
	Clock Clock
}

func DefaultConfig() *Config {
	return &Config{
		SendCooldown:        60 * time.Second,
		SendMaxPerHour:      5,
		SendMaxIPPerHour:    20,
		AttemptMaxFailures:  5,
		AttemptLockout:      15 * time.Minute,
		AttemptMaxIPPerHour: 60,
	}
}

type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

func allowed() LimitResult { return LimitResult{Allowed: true} }

type entry struct {
	count    int
	firstAt  time.Time // First request in window
	lastAt   time.Time // Most recent request
	lockedAt time.Time // Zero unless locked out
}

// window returns the entry's count in the hour starting at firstAt, or zero if
// that hour has passed.
func (e *entry) window(now time.Time) int {
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		return 0
	}
	return e.count
}

// bump counts a request in an hourly window.
func bump(m map[string]*entry, key string, now time.Time) {
	e := m[key]
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		m[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.count++
	e.lastAt = now
}

type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.RWMutex
	// Keyed by prefix + hash of identifier or IP
	sends    map[string]*entry
	attempts map[string]*entry

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		sends:         make(map[string]*entry),
		attempts:      make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// CheckSend reports whether an OTP may be sent. It does not record anything.
func (l *Limiter) CheckSend(identifier, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	idKey := hashKey("send:id:", normalizeIdentifier(identifier))
	ipKey := hashKey("send:ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if e := l.sends[idKey]; e != nil {
		if elapsed := now.Sub(e.lastAt); elapsed < l.config.SendCooldown {
			return LimitResult{RetryAfter: l.config.SendCooldown - elapsed, Reason: "cooldown"}
		}
		if e.window(now) >= l.config.SendMaxPerHour {
			return LimitResult{RetryAfter: time.Hour - now.Sub(e.firstAt), Reason: "hourly_limit"}
		}
	}
	if e := l.sends[ipKey]; e.window(now) >= l.config.SendMaxIPPerHour {
		return LimitResult{RetryAfter: time.Hour - now.Sub(e.firstAt), Reason: "ip_hourly_limit"}
	}
	return allowed()
}

// RecordSend records a sent OTP.
func (l *Limiter) RecordSend(identifier, ip string) {
	now := l.clock.Now()
	idKey := hashKey("send:id:", normalizeIdentifier(identifier))
	ipKey := hashKey("send:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()
	bump(l.sends, idKey, now)
	bump(l.sends, ipKey, now)
}

// CheckAttempt reports whether a credential attempt of kind may proceed.
func (l *Limiter) CheckAttempt(kind, identifier, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	idKey := hashKey(kind+":id:", normalizeIdentifier(identifier))
	ipKey := hashKey(kind+":ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if e := l.attempts[idKey]; e != nil && !e.lockedAt.IsZero() {
		if elapsed := now.Sub(e.lockedAt); elapsed < l.config.AttemptLockout {
			return LimitResult{RetryAfter: l.config.AttemptLockout - elapsed, Reason: "lockout"}
		}
	}
	if e := l.attempts[ipKey]; e.window(now) >= l.config.AttemptMaxIPPerHour {
		return LimitResult{RetryAfter: time.Hour - now.Sub(e.firstAt), Reason: "ip_hourly_limit"}
	}
	return allowed()
}

// RecordFailure counts a failed attempt and reports whether it started a lockout.
func (l *Limiter) RecordFailure(kind, identifier, ip string) (lockedOut bool) {
	now := l.clock.Now()
	idKey := hashKey(kind+":id:", normalizeIdentifier(identifier))
	ipKey := hashKey(kind+":ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.attempts[idKey]
	switch {
	case e == nil, !e.lockedAt.IsZero() && now.Sub(e.lockedAt) >= l.config.AttemptLockout:
		e = &entry{count: 1, firstAt: now, lastAt: now}
		l.attempts[idKey] = e
	default:
		e.count++
		e.lastAt = now
	}
	if e.count >= l.config.AttemptMaxFailures && e.lockedAt.IsZero() {
		e.lockedAt = now
		lockedOut = true
	}

	bump(l.attempts, ipKey, now)
	return lockedOut
}

// RecordSuccess clears the identifier's failures. The IP window still counts the attempt.
func (l *Limiter) RecordSuccess(kind, identifier, ip string) {
	now := l.clock.Now()
	idKey := hashKey(kind+":id:", normalizeIdentifier(identifier))
	ipKey := hashKey(kind+":ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, idKey)
	bump(l.attempts, ipKey, now)
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.sends {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.sends, k)
		}
	}
	maxAge := l.config.AttemptLockout + time.Hour
	for k, e := range l.attempts {
		if now.Sub(e.lastAt) > maxAge {
			delete(l.attempts, k)
		}
	}
}

// SanitizeIdentifier masks an identifier for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if local, domain, ok := strings.Cut(identifier, "@"); ok {
		if len(local) > 2 {
			return local[:2] + "***@" + domain
		}
		return "***@" + domain
	}
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

func LogRateLimitExceeded(limitType, identifier, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("identifier", SanitizeIdentifier(identifier)).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Rate limit exceeded")
}
