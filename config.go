package atcore

import (
	"time"

	"github.com/atgocore/atcore/dialect"
)

// SchedulerConfig holds the scheduler's timing parameters. There is no
// persisted form of this type: it exists only in memory for the lifetime
// of a Session, matching the library's no-configuration-files design.
type SchedulerConfig struct {
	// SerialPollInterval is how often the port watcher rescans available
	// ports; 0 disables rescans.
	SerialPollInterval time.Duration
	// CommandTick is how often the scheduler checks whether it may pop and
	// send the next queued line.
	CommandTick time.Duration
	// TemperaturePoll is how often the scheduler requests a temperature
	// report when idle; 0 disables polling.
	TemperaturePoll time.Duration
	// DetectionTimeout bounds the firmware-detection window.
	DetectionTimeout time.Duration
	// HeatWaitEpsilon is the tolerance, in °C, used to decide a
	// heat-and-wait has reached its target.
	HeatWaitEpsilon float32
}

// defaultConfig returns the canonical timings from the design (§3, §4.6).
func defaultConfig() SchedulerConfig {
	return SchedulerConfig{
		SerialPollInterval: 0,
		CommandTick:        100 * time.Millisecond,
		TemperaturePoll:    5 * time.Second,
		DetectionTimeout:   3 * time.Second,
		HeatWaitEpsilon:    0.5,
	}
}

// Option configures a Session at Open time.
type Option func(*SchedulerConfig)

// WithSerialPollInterval sets the port-watcher interval; 0 disables it.
func WithSerialPollInterval(d time.Duration) Option {
	return func(c *SchedulerConfig) { c.SerialPollInterval = d }
}

// WithCommandTick sets the command-pacing tick interval.
func WithCommandTick(d time.Duration) Option {
	return func(c *SchedulerConfig) { c.CommandTick = d }
}

// WithTemperaturePoll sets the idle temperature-poll interval; 0 disables
// polling.
func WithTemperaturePoll(d time.Duration) Option {
	return func(c *SchedulerConfig) { c.TemperaturePoll = d }
}

// WithDetectionTimeout sets the firmware-detection window.
func WithDetectionTimeout(d time.Duration) Option {
	return func(c *SchedulerConfig) { c.DetectionTimeout = d }
}

// WithHeatWaitEpsilon sets the heat-and-wait completion tolerance, in °C.
func WithHeatWaitEpsilon(eps float32) Option {
	return func(c *SchedulerConfig) { c.HeatWaitEpsilon = eps }
}

// ListBauds returns the canonical set of baud rates the library treats as
// selectable; this list, not the transport's own capabilities, is
// authoritative for test purposes.
func ListBauds() []int {
	return []int{9600, 19200, 38400, 57600, 115200, 250000}
}

// ListFirmwarePlugins returns the names of every statically registered
// firmware dialect.
func ListFirmwarePlugins() []string {
	return dialect.Names()
}
