package consensus

import "time"

// Config collects every timeout, interval, and limit the consensus module
// needs, built via functional Option values the way the CLI and node
// runner assemble them from flags/env.
type Config struct {
	MemberId int32
	AppVersion int32
	TimeUnit   int32

	SlowTickInterval        time.Duration
	LeaderHeartbeatInterval time.Duration
	LeaderHeartbeatTimeout  time.Duration
	SessionTimeout          time.Duration
	StartupCanvassTimeout   time.Duration
	ElectionTimeout         time.Duration

	TermBufferLength  int64
	LiveAddMaxWindow  int64

	MaxConcurrentSessions int
	FileSyncLevel         int

	ToolTimeout time.Duration
	ToolDelay   time.Duration

	ReplayChannel  string
	ReplayStreamId int32

	EgressChannelTemplate string
}

// Option mutates a Config during construction.
type Option func(*Config)

// DefaultConfig fills in conservative timeout and interval defaults for
// every field this module exposes.
func DefaultConfig(memberId int32) *Config {
	return &Config{
		MemberId:                memberId,
		AppVersion:              1,
		TimeUnit:                0,
		SlowTickInterval:        10 * time.Millisecond,
		LeaderHeartbeatInterval: 200 * time.Millisecond,
		LeaderHeartbeatTimeout:  2 * time.Second,
		SessionTimeout:          10 * time.Second,
		StartupCanvassTimeout:   5 * time.Second,
		ElectionTimeout:         1 * time.Second,
		TermBufferLength:        64 * 1024 * 1024,
		LiveAddMaxWindow:        4 * 1024 * 1024,
		MaxConcurrentSessions:   10,
		FileSyncLevel:           1,
		ToolTimeout:             10 * time.Second,
		ToolDelay:               100 * time.Millisecond,
		ReplayChannel:           "ipc",
		ReplayStreamId:          0,
	}
}

// WithLeaderHeartbeat sets both the follower-reported heartbeat cadence and
// the interval after which a leader is considered lost.
func WithLeaderHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.LeaderHeartbeatInterval = interval
		c.LeaderHeartbeatTimeout = timeout
	}
}

// WithSessionTimeout sets the inactivity window before a session is closed
// with CloseReasonTimeout.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Config) { c.SessionTimeout = d }
}

// WithStartupCanvassTimeout bounds how long Canvass waits for peer
// responses before Nominate proceeds with whatever quorum it has.
func WithStartupCanvassTimeout(d time.Duration) Option {
	return func(c *Config) { c.StartupCanvassTimeout = d }
}

// WithMaxConcurrentSessions sets the ingress admission limit (testable
// property 9).
func WithMaxConcurrentSessions(n int) Option {
	return func(c *Config) { c.MaxConcurrentSessions = n }
}

// WithFileSyncLevel sets the RecordingLog fsync policy (0/1/2).
func WithFileSyncLevel(level int) Option {
	return func(c *Config) { c.FileSyncLevel = level }
}

// WithEgressChannelTemplate sets the response-channel substitution template
// used by ResolveResponseChannel.
func WithEgressChannelTemplate(template string) Option {
	return func(c *Config) { c.EgressChannelTemplate = template }
}

// WithToolTimeouts sets the operator CLI's toolTimeoutNs/toolDelayNs.
func WithToolTimeouts(timeout, delay time.Duration) Option {
	return func(c *Config) {
		c.ToolTimeout = timeout
		c.ToolDelay = delay
	}
}

// WithReplay sets the channel/streamId the operator CLI uses to request
// replays.
func WithReplay(channel string, streamId int32) Option {
	return func(c *Config) {
		c.ReplayChannel = channel
		c.ReplayStreamId = streamId
	}
}

// NewConfig builds a Config from defaults plus options.
func NewConfig(memberId int32, opts ...Option) *Config {
	c := DefaultConfig(memberId)
	for _, opt := range opts {
		opt(c)
	}
	return c
}
