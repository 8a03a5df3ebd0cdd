package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectPolicy configures the retry schedule of a Reconnector.
type ReconnectPolicy struct {
	// InitialDelay is the wait before the first retry. The delay doubles
	// after each failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// MaxAttempts limits consecutive failed attempts; zero or negative
	// retries forever.
	MaxAttempts int
}

// DefaultReconnectPolicy returns the standard backoff schedule.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  0,
	}
}

// Reconnector drives repeated Connect calls with exponential backoff when
// the session drops. It is layered above the Session, which never retries
// on its own: the policy is swappable without touching the connection
// manager. Any drop is retried, including a remote close; deliberate
// teardown is expressed by calling Stop before closing the session.
type Reconnector struct {
	sess   *Session
	addr   string
	policy ReconnectPolicy
	logger *zap.Logger

	mu       sync.Mutex
	delay    time.Duration
	attempts int
	timer    *time.Timer
	stopped  bool
}

// NewReconnector wires a reconnector to the session's state stream. The
// first Connect is still the caller's: the reconnector only reacts to
// drops.
func NewReconnector(sess *Session, addr string, policy ReconnectPolicy, logger *zap.Logger) *Reconnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = DefaultReconnectPolicy().InitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultReconnectPolicy().MaxDelay
	}

	r := &Reconnector{
		sess:   sess,
		addr:   addr,
		policy: policy,
		logger: logger,
		delay:  policy.InitialDelay,
	}
	sess.OnStateChange(r.onStateChange)
	return r
}

// Stop cancels any pending retry and disables the reconnector.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconnector) onStateChange(st State) {
	switch st {
	case StateConnected:
		r.mu.Lock()
		r.delay = r.policy.InitialDelay
		r.attempts = 0
		r.mu.Unlock()
	case StateDisconnected, StateClosed:
		r.schedule()
	}
}

func (r *Reconnector) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if r.policy.MaxAttempts > 0 && r.attempts >= r.policy.MaxAttempts {
		r.logger.Warn("giving up on reconnect",
			zap.Int("attempts", r.attempts))
		return
	}

	r.attempts++
	delay := r.delay
	r.delay *= 2
	if r.delay > r.policy.MaxDelay {
		r.delay = r.policy.MaxDelay
	}

	r.logger.Info("scheduling reconnect",
		zap.Duration("delay", delay), zap.Int("attempt", r.attempts))

	r.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if !stopped {
			r.sess.Connect(r.addr)
		}
	})
}
