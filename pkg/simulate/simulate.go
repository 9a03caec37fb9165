package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"veridion-hq/sentinel/pkg/outcome"
	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/rule"
)

// ImpactLevel buckets the estimated block share.
type ImpactLevel string

const (
	// ImpactLow is a block share below 5%.
	ImpactLow ImpactLevel = "low"

	// ImpactMedium is a block share from 5% to 20%.
	ImpactMedium ImpactLevel = "medium"

	// ImpactHigh is a block share from 20% to 50%.
	ImpactHigh ImpactLevel = "high"

	// ImpactCritical is a block share of 50% or more.
	ImpactCritical ImpactLevel = "critical"
)

// impactLevel maps a block rate to its level.
func impactLevel(blockRate float64) ImpactLevel {
	switch {
	case blockRate >= 0.50:
		return ImpactCritical
	case blockRate >= 0.20:
		return ImpactHigh
	case blockRate >= 0.05:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// coverageBuckets is how finely the requested window is sliced when
// measuring time coverage.
const coverageBuckets = 24

// Request describes one simulation run.
type Request struct {
	// Rule is the candidate rule to replay. Required; must validate.
	Rule *rule.Node

	// Start and End bound the historical window. End must be after Start.
	Start time.Time
	End   time.Time

	// PolicyID optionally restricts the replay to outcomes recorded for
	// one policy. Empty replays the whole history window.
	PolicyID string
}

// Report is the result of one simulation run.
type Report struct {
	// Total is how many outcome records were replayed.
	Total int64 `json:"total"`

	// WouldBlock is how many of them the candidate rule would block.
	WouldBlock int64 `json:"would_block"`

	// BlockRate is WouldBlock / Total, or 0 for an empty window.
	BlockRate float64 `json:"block_rate"`

	// ImpactLevel buckets the block rate.
	ImpactLevel ImpactLevel `json:"impact_level"`

	// BlockedByAgent, BlockedByJurisdiction, and BlockedByFunction break
	// the would-block count down by agent and request attributes.
	BlockedByAgent        map[string]int64 `json:"blocked_by_agent,omitempty"`
	BlockedByJurisdiction map[string]int64 `json:"blocked_by_jurisdiction,omitempty"`
	BlockedByFunction     map[string]int64 `json:"blocked_by_function,omitempty"`

	// FullyBlockedAgents lists agents whose every replayed request the
	// rule would block; PartiallyBlockedAgents lists those with some but
	// not all blocked. Both sorted.
	FullyBlockedAgents     []string `json:"fully_blocked_agents,omitempty"`
	PartiallyBlockedAgents []string `json:"partially_blocked_agents,omitempty"`

	// Confidence is sample x coverage x evenness in [0,1].
	Confidence float64 `json:"confidence"`

	// SampleScore, Coverage, and Evenness are the confidence factors.
	SampleScore float64 `json:"sample_score"`
	Coverage    float64 `json:"coverage"`
	Evenness    float64 `json:"evenness"`

	// InsufficientData marks an empty window. It is a valid result, not
	// an error.
	InsufficientData bool `json:"insufficient_data"`

	// Partial marks a run cut short by the row budget or scan deadline.
	Partial bool `json:"partial"`

	// Start and End echo the requested window.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Duration is how long the replay took.
	Duration time.Duration `json:"duration"`
}

// Config contains configuration for the simulator.
type Config struct {
	// MaxRows is the row budget per run.
	// Default: 100000
	MaxRows int64 `yaml:"max_rows"`

	// MaxScanDuration is the scan deadline per run.
	// Default: 30 seconds
	MaxScanDuration time.Duration `yaml:"max_scan_duration"`

	// SampleSaturation is the sample size at which the sample factor of
	// the confidence score reaches 1.
	// Default: 10000
	SampleSaturation int64 `yaml:"sample_saturation"`
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 100000
	}
	if cfg.MaxScanDuration <= 0 {
		cfg.MaxScanDuration = 30 * time.Second
	}
	if cfg.SampleSaturation <= 0 {
		cfg.SampleSaturation = 10000
	}
	return cfg
}

// Simulator replays candidate rules over the outcome history.
type Simulator struct {
	cfgMu   sync.RWMutex
	cfg     Config
	history outcome.Store
	logger  *slog.Logger
}

// NewSimulator creates a simulator over the given history store.
func NewSimulator(cfg Config, history outcome.Store) *Simulator {
	return &Simulator{
		cfg:     cfg.withDefaults(),
		history: history,
		logger:  slog.Default().With("component", "simulate"),
	}
}

// UpdateConfig swaps the row and scan budgets. The next Run sees them;
// a run already scanning finishes under the budgets it started with.
func (s *Simulator) UpdateConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.withDefaults()
	s.cfgMu.Unlock()
}

func (s *Simulator) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Run executes one simulation. An empty window is not an error: the report
// comes back with Confidence 0 and InsufficientData set.
func (s *Simulator) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Rule == nil {
		return nil, &policy.ConfigurationError{Field: "rule", Message: "candidate rule is required"}
	}
	if err := req.Rule.Validate(); err != nil {
		return nil, &policy.ConfigurationError{Field: "rule", Message: err.Error()}
	}
	if !req.End.After(req.Start) {
		return nil, &policy.ConfigurationError{Field: "time_window", Message: fmt.Sprintf("end %v not after start %v", req.End, req.Start)}
	}

	cfg := s.config()
	start := time.Now()
	deadline := start.Add(cfg.MaxScanDuration)

	report := &Report{
		Start:                 req.Start,
		End:                   req.End,
		BlockedByAgent:        make(map[string]int64),
		BlockedByJurisdiction: make(map[string]int64),
		BlockedByFunction:     make(map[string]int64),
	}

	var (
		totalByAgent        = make(map[string]int64)
		totalByJurisdiction = make(map[string]int64)
		buckets             [coverageBuckets]bool
		bucketSize          = req.End.Sub(req.Start) / coverageBuckets
	)

	err := s.history.Scan(ctx, outcome.Query{
		PolicyID: req.PolicyID,
		Start:    req.Start,
		End:      req.End,
	}, func(rec *outcome.Record) error {
		if report.Total >= cfg.MaxRows || time.Now().After(deadline) {
			report.Partial = true
			return outcome.ErrStopScan
		}

		report.Total++
		totalByAgent[rec.AgentID]++
		jurisdiction := rec.Attributes["jurisdiction"]
		totalByJurisdiction[jurisdiction]++

		if bucketSize > 0 {
			idx := int(rec.Timestamp.Sub(req.Start) / bucketSize)
			if idx >= 0 && idx < coverageBuckets {
				buckets[idx] = true
			}
		}

		if req.Rule.Match(rec.Attributes) {
			report.WouldBlock++
			report.BlockedByAgent[rec.AgentID]++
			if jurisdiction != "" {
				report.BlockedByJurisdiction[jurisdiction]++
			}
			if fn := rec.Attributes["business_function"]; fn != "" {
				report.BlockedByFunction[fn]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)

	if report.Total == 0 {
		report.InsufficientData = true
		report.ImpactLevel = ImpactLow
		return report, nil
	}

	report.BlockRate = float64(report.WouldBlock) / float64(report.Total)
	report.ImpactLevel = impactLevel(report.BlockRate)

	for agent, blocked := range report.BlockedByAgent {
		if blocked == totalByAgent[agent] {
			report.FullyBlockedAgents = append(report.FullyBlockedAgents, agent)
		} else {
			report.PartiallyBlockedAgents = append(report.PartiallyBlockedAgents, agent)
		}
	}
	sort.Strings(report.FullyBlockedAgents)
	sort.Strings(report.PartiallyBlockedAgents)

	populated := 0
	for _, b := range buckets {
		if b {
			populated++
		}
	}

	report.SampleScore = sampleScore(report.Total, cfg.SampleSaturation)
	report.Coverage = float64(populated) / coverageBuckets
	report.Evenness = evenness(totalByAgent, totalByJurisdiction, report.Total)
	report.Confidence = report.SampleScore * report.Coverage * report.Evenness

	s.logger.Info("simulation complete",
		"policy_id", req.PolicyID,
		"total", report.Total,
		"would_block", report.WouldBlock,
		"impact", report.ImpactLevel,
		"confidence", fmt.Sprintf("%.3f", report.Confidence),
		"partial", report.Partial,
		"duration", report.Duration,
	)
	return report, nil
}

// sampleScore scales logarithmically and saturates at the configured
// sample size.
func sampleScore(total, saturation int64) float64 {
	score := math.Log10(1+float64(total)) / math.Log10(1+float64(saturation))
	if score > 1 {
		return 1
	}
	return score
}

// evenness penalizes windows dominated by a single agent or jurisdiction:
// it is 1 minus the mean of the two largest shares, so a window where one
// agent produced every record scores near zero.
func evenness(byAgent, byJurisdiction map[string]int64, total int64) float64 {
	if total == 0 {
		return 0
	}
	e := 1 - (maxShare(byAgent, total)+maxShare(byJurisdiction, total))/2
	if e < 0 {
		return 0
	}
	return e
}

func maxShare(counts map[string]int64, total int64) float64 {
	var max int64
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(total)
}
