package scan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is a pipeline stage. The four active steps run in declaration order;
// Completed and Failed are terminal and carry no progress weight.
type Step int

const (
	StepUploading Step = iota
	StepAnalyzing
	StepGenerating
	StepFormatting
	StepCompleted
	StepFailed
)

var stepNames = map[Step]string{
	StepUploading:  "uploading",
	StepAnalyzing:  "analyzing",
	StepGenerating: "generating",
	StepFormatting: "formatting",
	StepCompleted:  "completed",
	StepFailed:     "failed",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// ActiveSteps in pipeline order.
var ActiveSteps = []Step{StepUploading, StepAnalyzing, StepGenerating, StepFormatting}

type StepConfig struct {
	Weight      int
	AvgDuration time.Duration
}

// StepTable is the sole source of truth for progress math.
type StepTable struct {
	configs map[Step]StepConfig
}

func DefaultStepTable() StepTable {
	return StepTable{configs: map[Step]StepConfig{
		StepUploading:  {Weight: 10, AvgDuration: 2 * time.Second},
		StepAnalyzing:  {Weight: 40, AvgDuration: 8 * time.Second},
		StepGenerating: {Weight: 40, AvgDuration: 10 * time.Second},
		StepFormatting: {Weight: 10, AvgDuration: 2 * time.Second},
	}}
}

func (t StepTable) Config(s Step) StepConfig {
	return t.configs[s]
}

// Validate checks the weights of the active steps sum to 100 and every
// active step has a positive expected duration.
func (t StepTable) Validate() error {
	sum := 0
	for _, s := range ActiveSteps {
		cfg, ok := t.configs[s]
		if !ok {
			return fmt.Errorf("step table missing %s", s)
		}
		if cfg.AvgDuration <= 0 {
			return fmt.Errorf("step %s: avg duration must be positive", s)
		}
		sum += cfg.Weight
	}
	if sum != 100 {
		return fmt.Errorf("step weights sum to %d, want 100", sum)
	}
	return nil
}

// TotalExpected is the summed average duration of the active steps.
func (t StepTable) TotalExpected() time.Duration {
	var total time.Duration
	for _, s := range ActiveSteps {
		total += t.configs[s].AvgDuration
	}
	return total
}

// WeightBefore sums the weights of the active steps that precede s.
func (t StepTable) WeightBefore(s Step) int {
	sum := 0
	for _, a := range ActiveSteps {
		if a >= s {
			break
		}
		sum += t.configs[a].Weight
	}
	return sum
}

// ElapsedBefore sums the average durations of the active steps that
// precede s.
func (t StepTable) ElapsedBefore(s Step) time.Duration {
	var total time.Duration
	for _, a := range ActiveSteps {
		if a >= s {
			break
		}
		total += t.configs[a].AvgDuration
	}
	return total
}

type stepTableFile struct {
	Steps map[string]struct {
		Weight             int     `yaml:"weight"`
		AvgDurationSeconds float64 `yaml:"avg_duration_seconds"`
	} `yaml:"steps"`
}

// LoadStepTable reads a YAML override. Steps absent from the file keep
// their defaults; the merged table must still validate.
func LoadStepTable(path string) (StepTable, error) {
	table := DefaultStepTable()
	raw, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read step table: %w", err)
	}
	var f stepTableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return table, fmt.Errorf("parse step table: %w", err)
	}
	byName := map[string]Step{}
	for _, s := range ActiveSteps {
		byName[s.String()] = s
	}
	for name, cfg := range f.Steps {
		s, ok := byName[name]
		if !ok {
			return table, fmt.Errorf("step table: unknown step %q", name)
		}
		table.configs[s] = StepConfig{
			Weight:      cfg.Weight,
			AvgDuration: time.Duration(cfg.AvgDurationSeconds * float64(time.Second)),
		}
	}
	if err := table.Validate(); err != nil {
		return table, err
	}
	return table, nil
}
