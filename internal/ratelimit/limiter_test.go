package ratelimit

import (
	"net/http"
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheckSend_Cooldown(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		SendCooldown:     60 * time.Second,
		SendMaxPerHour:   5,
		SendMaxIPPerHour: 20,
		Clock:            clock,
	})
	defer limiter.Close()

	if result := limiter.CheckSend("member@example.com", "192.168.1.1"); !result.Allowed {
		t.Fatalf("first send blocked: %s", result.Reason)
	}
	limiter.RecordSend("member@example.com", "192.168.1.1")

	clock.Advance(30 * time.Second)
	result := limiter.CheckSend("MEMBER@example.com", "192.168.1.1")
	if result.Allowed || result.Reason != "cooldown" {
		t.Fatalf("expected cooldown, got %+v", result)
	}
	if result.RetryAfter != 30*time.Second {
		t.Fatalf("retry after: %v", result.RetryAfter)
	}

	clock.Advance(31 * time.Second)
	if result := limiter.CheckSend("member@example.com", "192.168.1.1"); !result.Allowed {
		t.Fatalf("send after cooldown blocked: %s", result.Reason)
	}
}

func TestCheckSend_HourlyAndIPLimits(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		SendCooldown:     time.Millisecond,
		SendMaxPerHour:   2,
		SendMaxIPPerHour: 3,
		Clock:            clock,
	})
	defer limiter.Close()

	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		limiter.RecordSend("hourly@example.com", "10.0.0.9")
	}
	clock.Advance(time.Second)
	if result := limiter.CheckSend("hourly@example.com", "10.0.0.9"); result.Reason != "hourly_limit" {
		t.Fatalf("expected hourly limit, got %+v", result)
	}

	limiter.RecordSend("other@example.com", "10.0.0.9")
	if result := limiter.CheckSend("third@example.com", "10.0.0.9"); result.Reason != "ip_hourly_limit" {
		t.Fatalf("expected ip limit, got %+v", result)
	}

	clock.Advance(time.Hour)
	if result := limiter.CheckSend("hourly@example.com", "10.0.0.9"); !result.Allowed {
		t.Fatalf("expected window reset, got %+v", result)
	}
}

func TestAttemptLockout(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		AttemptMaxFailures:  3,
		AttemptLockout:      5 * time.Minute,
		AttemptMaxIPPerHour: 100,
		Clock:               clock,
	})
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		if result := limiter.CheckAttempt(KindLogin, "lock@example.com", "1.2.3.4"); !result.Allowed {
			t.Fatalf("attempt %d blocked: %s", i+1, result.Reason)
		}
		locked := limiter.RecordFailure(KindLogin, "lock@example.com", "1.2.3.4")
		if locked != (i == 2) {
			t.Fatalf("attempt %d lockout = %v", i+1, locked)
		}
	}

	result := limiter.CheckAttempt(KindLogin, "lock@example.com", "1.2.3.4")
	if result.Allowed || result.Reason != "lockout" || result.RetryAfter != 5*time.Minute {
		t.Fatalf("expected lockout, got %+v", result)
	}

	// Kinds are counted separately.
	if result := limiter.CheckAttempt(KindOTPVerify, "lock@example.com", "1.2.3.4"); !result.Allowed {
		t.Fatalf("otp verify should not share login lockout: %+v", result)
	}

	clock.Advance(5*time.Minute + time.Second)
	if result := limiter.CheckAttempt(KindLogin, "lock@example.com", "1.2.3.4"); !result.Allowed {
		t.Fatalf("expected lockout to expire, got %+v", result)
	}
	if limiter.RecordFailure(KindLogin, "lock@example.com", "1.2.3.4") {
		t.Fatal("first failure after lockout should start a new count")
	}
}

func TestRecordSuccessClearsFailures(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		AttemptMaxFailures:  2,
		AttemptLockout:      time.Minute,
		AttemptMaxIPPerHour: 100,
		Clock:               clock,
	})
	defer limiter.Close()

	limiter.RecordFailure(KindLogin, "ok@example.com", "1.2.3.4")
	limiter.RecordSuccess(KindLogin, "ok@example.com", "1.2.3.4")
	if limiter.RecordFailure(KindLogin, "ok@example.com", "1.2.3.4") {
		t.Fatal("success should reset the failure count")
	}
}

func TestAttemptIPLimit(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{
		AttemptMaxFailures:  100,
		AttemptLockout:      time.Minute,
		AttemptMaxIPPerHour: 2,
		Clock:               clock,
	})
	defer limiter.Close()

	limiter.RecordFailure(KindLogin, "a@example.com", "203.0.113.9")
	limiter.RecordSuccess(KindLogin, "b@example.com", "203.0.113.9")
	result := limiter.CheckAttempt(KindLogin, "c@example.com", "203.0.113.9")
	if result.Allowed || result.Reason != "ip_hourly_limit" {
		t.Fatalf("expected ip limit, got %+v", result)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		expected   string
	}{
		{"rightmost public forwarded ip", map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"}, "10.0.0.1:12345", true, "203.0.113.50"},
		{"all private forwarded ips", map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"}, "10.0.0.1:12345", true, "10.0.0.1"},
		{"real ip header", map[string]string{"X-Real-IP": "203.0.113.51"}, "10.0.0.1:12345", true, "203.0.113.51"},
		{"untrusted proxy ignores headers", map[string]string{"X-Forwarded-For": "203.0.113.50"}, "192.168.1.100:54321", false, "192.168.1.100"},
		{"remote addr without port", map[string]string{}, "192.168.1.100", false, "192.168.1.100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r, tt.trustProxy); got != tt.expected {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"JOHN.DOE@EXAMPLE.COM", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"+15551234567", "***4567"},
		{"123", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SanitizeIdentifier(tt.input); got != tt.expected {
				t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := map[string]bool{
		"10.0.0.1":             true,
		"172.31.255.255":       true,
		"127.0.0.1":            true,
		"::1":                  true,
		"::ffff:192.168.1.1":   true,
		"::ffff:8.8.8.8":       false,
		"203.0.113.50":         false,
		"2001:4860:4860::8888": false,
		"invalid":              false,
	}
	for ip, expected := range tests {
		if got := isPrivateIP(ip); got != expected {
			t.Errorf("isPrivateIP(%q) = %v, want %v", ip, got, expected)
		}
	}
}

func TestLimiterClose(t *testing.T) {
	limiter := New(nil)
	limiter.CheckSend("test@example.com", "1.2.3.4")

	done := make(chan struct{})
	go func() {
		limiter.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Close() should not hang")
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := New(&Config{
		SendCooldown:        time.Millisecond,
		SendMaxPerHour:      1000,
		SendMaxIPPerHour:    1000,
		AttemptMaxFailures:  1000,
		AttemptLockout:      time.Minute,
		AttemptMaxIPPerHour: 1000,
		Clock:               newMockClock(),
	})
	defer limiter.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if limiter.CheckSend("user@example.com", "192.168.1.1").Allowed {
					limiter.RecordSend("user@example.com", "192.168.1.1")
				}
				if limiter.CheckAttempt(KindLogin, "user@example.com", "192.168.1.1").Allowed {
					limiter.RecordFailure(KindLogin, "user@example.com", "192.168.1.1")
				}
				limiter.RecordSuccess(KindLogin, "user@example.com", "192.168.1.1")
			}
		}()
	}
	wg.Wait()
}
