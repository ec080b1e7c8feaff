package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete MuleRift configuration. It is built once in
// main, handed to each component at construction, and never mutated after
// the run starts.
type Config struct {
	// Strict rejects the whole run on the first malformed ledger row.
	// The default (lenient) skips malformed rows and counts them.
	Strict bool `json:"strict"`

	// Timeout bounds the whole analysis run. Zero means no deadline.
	Timeout time.Duration `json:"timeout"`

	// Detector thresholds
	Cycle    CycleConfig    `json:"cycle"`
	Smurfing SmurfingConfig `json:"smurfing"`
	Shell    ShellConfig    `json:"shell"`

	// Scoring and ring aggregation
	Scoring ScoringConfig `json:"scoring"`
	Rings   RingConfig    `json:"rings"`

	// PolicyFile names an optional JSON file of account policies.
	PolicyFile string `json:"policyFile"`

	// Serve-mode components
	Server   ServerConfig   `json:"server"`
	Archive  ArchiveConfig  `json:"archive"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
}

// CycleConfig bounds the cycle detector.
type CycleConfig struct {
	// MinLength and MaxLength bound reported cycle sizes. An unbounded
	// search is worst-case exponential on dense graphs, so MaxLength is
	// mandatory.
	MinLength int `json:"minLength"`
	MaxLength int `json:"maxLength"`

	// Window is the span beyond which a cycle's signal is down-weighted,
	// not discarded.
	Window time.Duration `json:"window"`
}

// SmurfingConfig bounds the fan-in/fan-out detector.
type SmurfingConfig struct {
	// FanThreshold is the distinct-counterparty count a hub must exceed
	// inside one sliding window.
	FanThreshold int `json:"fanThreshold"`

	// Window is the sliding time window for counting counterparties.
	Window time.Duration `json:"window"`

	// AmountCeiling is the structuring proxy: per-leg amounts must sit
	// below it for the pattern to qualify.
	AmountCeiling decimal.Decimal `json:"amountCeiling"`
}

// ShellConfig bounds the pass-through detector.
type ShellConfig struct {
	// PassThroughTolerance is the allowed deviation of out/in volume from 1.
	PassThroughTolerance float64 `json:"passThroughTolerance"`

	// MaxDwell is the median receipt-to-forward delay ceiling.
	MaxDwell time.Duration `json:"maxDwell"`
}

// ScoringConfig controls how detector signals combine into account scores.
type ScoringConfig struct {
	// ReportingThreshold is the minimum combined score (0-100) for an
	// account to appear in the report.
	ReportingThreshold float64 `json:"reportingThreshold"`

	// PatternFloor is the minimum signal strength for a pattern label to
	// attach to an account, independent of the reporting threshold.
	PatternFloor float64 `json:"patternFloor"`

	// Weights maps pattern type to its contribution weight.
	Weights map[string]float64 `json:"weights"`
}

// RingConfig controls ring aggregation and alerting.
type RingConfig struct {
	// AlertFloor is the minimum risk score for a ring-detected event to be
	// published on the bus. Report contents are unaffected.
	AlertFloor float64 `json:"alertFloor"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// DefaultConfig returns the configuration the engine runs with when nothing
// is overridden. Thresholds are starting points chosen against labeled test
// ledgers, not regulatory constants.
func DefaultConfig() *Config {
	return &Config{
		Strict:  false,
		Timeout: 0,
		Cycle: CycleConfig{
			MinLength: 3,
			MaxLength: 8,
			Window:    30 * 24 * time.Hour,
		},
		Smurfing: SmurfingConfig{
			FanThreshold:  8,
			Window:        72 * time.Hour,
			AmountCeiling: decimal.NewFromInt(10000),
		},
		Shell: ShellConfig{
			PassThroughTolerance: 0.05,
			MaxDwell:             24 * time.Hour,
		},
		Scoring: ScoringConfig{
			ReportingThreshold: 40,
			PatternFloor:       0.1,
			Weights: map[string]float64{
				PatternCycle:    1.0,
				PatternSmurfing: 1.0,
				PatternShell:    1.0,
			},
		},
		Rings: RingConfig{
			AlertFloor: 70,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Archive: ArchiveConfig{
			Driver: "",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 256,
			LocalTTL:     15 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
