package ctlog

import "time"

// Config carries every tunable the log coordination engine exposes.
// Construct with NewConfig and functional options; fields carry sane
// defaults so a zero-value caller still gets a runnable log.
type Config struct {
	LogID string

	MMD                  time.Duration
	SigningBatchLimit    int
	SigningInterval      time.Duration
	SigningGuardWindow   time.Duration
	ServingFreshnessWindow time.Duration
	ClusterQuorum        int
	LeaderLeaseTTL       time.Duration
	LeaderRefreshInterval time.Duration
	FetcherParallelism   int
	FetcherWindowSize    uint64

	// ClockSkewBound is the maximum amount of backward clock correction
	// the signer will tolerate before refusing to sign. Resolves the
	// open question of STH timestamp selection under clock skew: the
	// signer always enforces timestamp strictly monotonic
	// (max(now, prev+1ms)), but if that correction would exceed this
	// bound the signer treats it as a Fatal condition instead of
	// silently absorbing it.
	ClockSkewBound time.Duration

	// SkewObserver, if non-nil, is called with the clock skew (which
	// may be negative) observed on every signing pass. No metrics
	// library is wired in this package; callers plug in their own.
	SkewObserver func(skew time.Duration)
}

// Option mutates a Config at construction time.
type Option func(*Config)

// NewConfig returns a Config for logID with every option applied on top
// of the defaults.
func NewConfig(logID string, opts ...Option) *Config {
	c := &Config{
		LogID:                 logID,
		MMD:                   24 * time.Hour,
		SigningBatchLimit:     1000,
		SigningInterval:       10 * time.Second,
		SigningGuardWindow:    0,
		ServingFreshnessWindow: 2 * time.Minute,
		ClusterQuorum:         1,
		LeaderLeaseTTL:        15 * time.Second,
		LeaderRefreshInterval: 5 * time.Second,
		FetcherParallelism:    4,
		FetcherWindowSize:     256,
		ClockSkewBound:        5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithMMD sets the maximum merge delay.
func WithMMD(d time.Duration) Option { return func(c *Config) { c.MMD = d } }

// WithBatchLimit sets the maximum number of entries sequenced per pass.
func WithBatchLimit(n int) Option { return func(c *Config) { c.SigningBatchLimit = n } }

// WithSigningInterval sets the sleep between sequencing passes.
func WithSigningInterval(d time.Duration) Option { return func(c *Config) { c.SigningInterval = d } }

// WithSigningGuardWindow sets the minimum age a pending entry must have
// reached (by its submission timestamp) before the signer will include
// it in a batch. Withholding very recently queued entries absorbs
// clock skew between the submitter and the signer so it can't create
// ordering surprises within a batch. Zero disables the guard window.
func WithSigningGuardWindow(d time.Duration) Option {
	return func(c *Config) { c.SigningGuardWindow = d }
}

// WithServingFreshnessWindow sets how old a quorum STH may be and still
// be promoted to serving_sth.
func WithServingFreshnessWindow(d time.Duration) Option {
	return func(c *Config) { c.ServingFreshnessWindow = d }
}

// WithClusterQuorum sets the minimum node count required to advance the
// serving STH.
func WithClusterQuorum(n int) Option { return func(c *Config) { c.ClusterQuorum = n } }

// WithLeaderLease sets the election lease TTL and refresh interval.
func WithLeaderLease(ttl, refresh time.Duration) Option {
	return func(c *Config) { c.LeaderLeaseTTL = ttl; c.LeaderRefreshInterval = refresh }
}

// WithFetcher sets the mirror fetcher's parallelism and window size.
func WithFetcher(parallelism int, windowSize uint64) Option {
	return func(c *Config) { c.FetcherParallelism = parallelism; c.FetcherWindowSize = windowSize }
}

// WithClockSkewBound sets the maximum tolerated backward clock
// correction before the signer treats it as fatal.
func WithClockSkewBound(d time.Duration) Option {
	return func(c *Config) { c.ClockSkewBound = d }
}

// WithSkewObserver installs a callback invoked with the observed clock
// skew on every signing pass.
func WithSkewObserver(f func(time.Duration)) Option {
	return func(c *Config) { c.SkewObserver = f }
}
