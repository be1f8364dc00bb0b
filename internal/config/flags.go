package config

import "time"

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if flags.Threshold.Set {
		cfg.Scoring.DefaultThreshold = flags.Threshold.Value
	}
	if flags.Aggregation.Set {
		cfg.Scoring.Aggregation = flags.Aggregation.Value
	}
	if flags.StepTimeout.Set {
		cfg.Scoring.StepTimeout = flags.StepTimeout.Value
	}
	if flags.Provider.Set {
		cfg.Embedding.Provider = flags.Provider.Value
	}
	if flags.NoCache.Set {
		cfg.Cache.Disabled = flags.NoCache.Value
	}
	if flags.StorePath.Set {
		cfg.Store.Path = flags.StorePath.Value
	}
	if flags.Workers.Set {
		cfg.Runner.Workers = flags.Workers.Value
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Threshold   FloatFlag
	Aggregation StringFlag
	StepTimeout DurationFlag
	Provider    StringFlag
	NoCache     BoolFlag
	StorePath   StringFlag
	Workers     IntFlag
	Format      StringFlag
	Verbose     BoolFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// FloatFlag represents a float flag and whether it was set.
type FloatFlag struct {
	Value float64
	Set   bool
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}

// DurationFlag represents a duration flag and whether it was set.
type DurationFlag struct {
	Value time.Duration
	Set   bool
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}
