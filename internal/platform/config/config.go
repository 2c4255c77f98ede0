// Package config holds the small set of engine-wide knobs the source
// kept in a Django settings singleton (spec.md section 9: "Global
// mutable state ... replace with an injected configuration value
// containing the three MODBPM_* options"). Callers build one Config at
// startup and pass it down explicitly instead of reading the
// environment from deep inside the engine.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arcwelder/bpmengine/internal/platform/envutil"
)

// Config is the engine's only piece of injected, process-wide state.
type Config struct {
	// MinScheduleInterval floors the re-arm countdown a task's interval
	// generator may request (spec.md section 4.4).
	MinScheduleInterval time.Duration `yaml:"min_schedule_interval_seconds"`
	// MaxScheduleInterval ceilings it.
	MaxScheduleInterval time.Duration `yaml:"max_schedule_interval_seconds"`
	// AcknowledgeCountdown is the delay before retrying a parent wake-up
	// that failed because the parent wasn't in a transitable state
	// (spec.md section 4.6).
	AcknowledgeCountdown time.Duration `yaml:"acknowledge_countdown_seconds"`

	// WorkerConcurrency is the number of goroutines draining the job
	// queue (spec.md section 5, "outer" scheduling layer).
	WorkerConcurrency int `yaml:"worker_concurrency"`
	// PollInterval is how often an idle worker checks the queue for work.
	PollInterval time.Duration `yaml:"poll_interval_seconds"`
	// JobTimeout bounds a single initiate/schedule job; exceeding it is
	// treated as the timeout status code (spec.md section 7).
	JobTimeout time.Duration `yaml:"job_timeout_seconds"`
}

// Default matches the source's documented defaults.
func Default() Config {
	return Config{
		MinScheduleInterval:  1 * time.Second,
		MaxScheduleInterval:  1 * time.Hour,
		AcknowledgeCountdown: 30 * time.Second,
		WorkerConcurrency:    4,
		PollInterval:         1 * time.Second,
		JobTimeout:           5 * time.Minute,
	}
}

// FromEnv overlays process environment variables onto Default(), the
// same MODBPM_*-prefixed idiom the source used (spec.md section 6).
func FromEnv() Config {
	c := Default()
	c.MinScheduleInterval = envutil.Seconds("BPM_MIN_SCHEDULE_INTERVAL", int(c.MinScheduleInterval/time.Second))
	c.MaxScheduleInterval = envutil.Seconds("BPM_MAX_SCHEDULE_INTERVAL", int(c.MaxScheduleInterval/time.Second))
	c.AcknowledgeCountdown = envutil.Seconds("BPM_ACKNOWLEDGE_COUNTDOWN", int(c.AcknowledgeCountdown/time.Second))
	c.WorkerConcurrency = envutil.Int("BPM_WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.PollInterval = envutil.Seconds("BPM_POLL_INTERVAL", int(c.PollInterval/time.Second))
	c.JobTimeout = envutil.Seconds("BPM_JOB_TIMEOUT", int(c.JobTimeout/time.Second))
	return c
}

// LoadYAML overlays a YAML document (section names match the field tags
// above) onto base. A missing path is not an error: the engine runs on
// env-derived defaults alone when no file is mounted.
func LoadYAML(base Config, path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, err
	}

	var overlay struct {
		MinScheduleIntervalSeconds  *int `yaml:"min_schedule_interval_seconds"`
		MaxScheduleIntervalSeconds  *int `yaml:"max_schedule_interval_seconds"`
		AcknowledgeCountdownSeconds *int `yaml:"acknowledge_countdown_seconds"`
		WorkerConcurrency           *int `yaml:"worker_concurrency"`
		PollIntervalSeconds         *int `yaml:"poll_interval_seconds"`
		JobTimeoutSeconds           *int `yaml:"job_timeout_seconds"`
	}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return base, err
	}

	out := base
	if overlay.MinScheduleIntervalSeconds != nil {
		out.MinScheduleInterval = time.Duration(*overlay.MinScheduleIntervalSeconds) * time.Second
	}
	if overlay.MaxScheduleIntervalSeconds != nil {
		out.MaxScheduleInterval = time.Duration(*overlay.MaxScheduleIntervalSeconds) * time.Second
	}
	if overlay.AcknowledgeCountdownSeconds != nil {
		out.AcknowledgeCountdown = time.Duration(*overlay.AcknowledgeCountdownSeconds) * time.Second
	}
	if overlay.WorkerConcurrency != nil {
		out.WorkerConcurrency = *overlay.WorkerConcurrency
	}
	if overlay.PollIntervalSeconds != nil {
		out.PollInterval = time.Duration(*overlay.PollIntervalSeconds) * time.Second
	}
	if overlay.JobTimeoutSeconds != nil {
		out.JobTimeout = time.Duration(*overlay.JobTimeoutSeconds) * time.Second
	}
	return out, nil
}

// ClampSchedule clamps an interval a task's interval generator returned
// to [MinScheduleInterval, MaxScheduleInterval] (spec.md section 4.4).
func (c Config) ClampSchedule(d time.Duration) time.Duration {
	if d < c.MinScheduleInterval {
		return c.MinScheduleInterval
	}
	if c.MaxScheduleInterval > 0 && d > c.MaxScheduleInterval {
		return c.MaxScheduleInterval
	}
	return d
}
