package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"secops-orchestrator/core/models"
)

const (
	// DefaultThreatThreshold is the modified z-score above which a value is anomalous
	DefaultThreatThreshold = 3.5

	// minFeatureSamples is the smallest sample a feature is scored on
	minFeatureSamples = 3

	// records scored between cancellation checks
	threatCheckInterval = 256
)

// ThreatDetectionAgent flags log records whose numeric fields are outliers
// against the rest of the batch, using the median/MAD modified z-score.
type ThreatDetectionAgent struct {
	threshold float64
}

// NewThreatDetectionAgent creates a new threat detection agent
func NewThreatDetectionAgent(threshold float64) *ThreatDetectionAgent {
	if threshold <= 0 {
		threshold = DefaultThreatThreshold
	}
	return &ThreatDetectionAgent{threshold: threshold}
}

// Threat is one anomalous log record
type Threat struct {
	Index    int              `json:"index"`
	Score    float64          `json:"score"`
	Features []string         `json:"features"`
	Record   models.LogRecord `json:"record"`
}

// Execute implements registry.Handler
func (a *ThreatDetectionAgent) Execute(ctx context.Context, params models.Parameters) (models.JobResult, error) {
	p, err := paramsAs[models.ThreatDetectParams](params)
	if err != nil {
		return nil, err
	}

	threats, err := a.Detect(ctx, p.Logs)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Detected %d anomalous log records out of %d.", len(threats), len(p.Logs))
	return models.JobResult{
		"threats":  threats,
		"count":    len(threats),
		"analyzed": len(p.Logs),
		"message":  msg,
	}, nil
}

// Detect scores every numeric feature of logs and returns the anomalous records in input order
func (a *ThreatDetectionAgent) Detect(ctx context.Context, logs []models.LogRecord) ([]Threat, error) {
	columns := numericColumns(logs)

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	flagged := make(map[int]*Threat)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		col := columns[name]
		if len(col.values) < minFeatureSamples {
			continue
		}
		scorer, ok := newRobustScorer(col.values)
		if !ok {
			continue
		}
		for i, v := range col.values {
			if i%threatCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			score := math.Abs(scorer.score(v))
			if score <= a.threshold {
				continue
			}
			idx := col.rows[i]
			t, ok := flagged[idx]
			if !ok {
				t = &Threat{Index: idx, Record: logs[idx]}
				flagged[idx] = t
			}
			t.Features = append(t.Features, name)
			if score > t.Score {
				t.Score = score
			}
		}
	}

	threats := make([]Threat, 0, len(flagged))
	for _, t := range flagged {
		t.Score = math.Round(t.Score*1000) / 1000
		threats = append(threats, *t)
	}
	sort.Slice(threats, func(i, j int) bool { return threats[i].Index < threats[j].Index })
	return threats, nil
}

type column struct {
	values []float64
	rows   []int
}

func numericColumns(logs []models.LogRecord) map[string]*column {
	columns := make(map[string]*column)
	for i, rec := range logs {
		for key, raw := range rec {
			v, ok := toFloat(raw)
			if !ok {
				continue
			}
			col, exists := columns[key]
			if !exists {
				col = &column{}
				columns[key] = col
			}
			col.values = append(col.values, v)
			col.rows = append(col.rows, i)
		}
	}
	return columns
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// robustScorer computes the Iglewicz-Hoaglin modified z-score. When more than
// half the sample is identical the MAD is zero and the mean absolute
// deviation is used instead.
type robustScorer struct {
	median float64
	scale  float64
}

func newRobustScorer(values []float64) (robustScorer, bool) {
	med := median(values)
	deviations := make([]float64, len(values))
	var sumDev float64
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
		sumDev += deviations[i]
	}

	if mad := median(deviations); mad > 0 {
		return robustScorer{median: med, scale: mad / 0.6745}, true
	}
	if meanAD := sumDev / float64(len(values)); meanAD > 0 {
		return robustScorer{median: med, scale: 1.253314 * meanAD}, true
	}
	return robustScorer{}, false
}

func (s robustScorer) score(v float64) float64 {
	return (v - s.median) / s.scale
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
