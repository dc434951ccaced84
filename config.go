package lockfreelist

// Config holds tuning knobs for the hazard-pointer registry backing a
// LockFreeList.
type Config struct {
	// maxParticipants is the number of hazard records in the table. It
	// bounds how many operations may run concurrently on one list.
	maxParticipants int

	// slotsPerParticipant is the number of pointer slots per record. The
	// traversal needs five; larger values only waste scan time.
	slotsPerParticipant int

	// retireThreshold is the retired-buffer size that triggers a reclaim
	// scan.
	retireThreshold int
}

// Option mutates a Config.
type Option func(*Config)

// NewConfig returns a Config with default values.
func NewConfig(opts ...Option) Config {
	c := Config{
		maxParticipants:     256,
		slotsPerParticipant: 5,
		retireThreshold:     50,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxParticipants < 1 {
		c.maxParticipants = 1
	}
	if c.slotsPerParticipant < hpSlotCount {
		c.slotsPerParticipant = hpSlotCount
	}
	if c.retireThreshold < 1 {
		c.retireThreshold = 1
	}
	return c
}

// WithMaxParticipants sets the number of hazard records in the table.
func WithMaxParticipants(n int) Option {
	return func(c *Config) { c.maxParticipants = n }
}

// WithSlotsPerParticipant sets the number of pointer slots per record.
// Values below the five the traversal requires are raised to five.
func WithSlotsPerParticipant(n int) Option {
	return func(c *Config) { c.slotsPerParticipant = n }
}

// WithRetireThreshold sets the retired-buffer size that triggers a reclaim
// scan.
func WithRetireThreshold(n int) Option {
	return func(c *Config) { c.retireThreshold = n }
}
