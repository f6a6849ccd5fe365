// Package report aggregates persisted validation runs into failure patterns.
// A pattern whose share of failed runs crosses the systemic threshold points
// at a shared cause (a miscalibrated tolerance, a broken geocoder, a stale
// registry) rather than bad data in one jurisdiction. The aggregation is a
// pure read over run history and stays out of the proof path.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tessera/internal/pipeline"
	id "tessera/pkg/domain"
	"tessera/pkg/requestcontext"
)

const (
	tracerName = "tessera/internal/report"

	defaultThreshold = 0.20

	// maxJurisdictions caps the per-pattern jurisdiction list; the counts
	// stay exact, the list is illustrative.
	maxJurisdictions = 10
)

// Classification says whether a failure pattern is widespread enough to
// suggest a shared cause.
type Classification string

const (
	ClassSystemic Classification = "SYSTEMIC"
	ClassOneOff   Classification = "ONE_OFF"
)

// Pattern is one aggregated failure mode. Reason refines the category where
// structured detail exists: the failing axiom for axiom violations, the
// filter code for prevalidation rejections.
type Pattern struct {
	Category      id.FailureCategory  `json:"category"`
	Reason        string              `json:"reason,omitempty"`
	Count         int                 `json:"count"`
	Share         float64             `json:"share"`
	Class         Classification      `json:"classification"`
	Jurisdictions []id.JurisdictionID `json:"jurisdictions,omitempty"`
}

// Report summarizes failure patterns over the runs recorded since a cutoff.
type Report struct {
	Since       time.Time `json:"since,omitzero"`
	GeneratedAt time.Time `json:"generated_at"`
	TotalRuns   int       `json:"total_runs"`
	FailedRuns  int       `json:"failed_runs"`
	Patterns    []Pattern `json:"patterns"`
}

// RunSource is the slice of run history the aggregator reads.
type RunSource interface {
	ListSince(ctx context.Context, since time.Time) ([]pipeline.ValidationRun, error)
}

// Aggregator computes failure-pattern reports from persisted runs.
type Aggregator struct {
	runs      RunSource
	threshold float64
}

type Option func(*Aggregator)

// WithThreshold overrides the systemic share threshold. Values outside
// (0, 1] are ignored.
func WithThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

func NewAggregator(runs RunSource, opts ...Option) (*Aggregator, error) {
	if runs == nil {
		return nil, errors.New("run source is required")
	}
	agg := &Aggregator{
		runs:      runs,
		threshold: defaultThreshold,
	}
	for _, opt := range opts {
		opt(agg)
	}
	return agg, nil
}

type patternKey struct {
	category id.FailureCategory
	reason   string
}

// FailurePatterns aggregates every run recorded at or after since. Shares
// are fractions of failed runs, not of all runs: eight jurisdictions
// rejected by the same filter are a systemic signal even when hundreds of
// others pass.
func (a *Aggregator) FailurePatterns(ctx context.Context, since time.Time) (*Report, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "report.FailurePatterns")
	defer span.End()

	runs, err := a.runs.ListSince(ctx, since)
	if err != nil {
		err = fmt.Errorf("list runs since %s: %w", since.Format(time.RFC3339), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "run listing failed")
		return nil, err
	}

	type bucket struct {
		count         int
		jurisdictions map[id.JurisdictionID]struct{}
	}
	buckets := make(map[patternKey]*bucket)
	failed := 0
	for _, run := range runs {
		if run.FailureCategory == "" {
			continue
		}
		failed++
		for _, key := range patternKeys(run) {
			b := buckets[key]
			if b == nil {
				b = &bucket{jurisdictions: make(map[id.JurisdictionID]struct{})}
				buckets[key] = b
			}
			b.count++
			if !run.Jurisdiction.IsNil() {
				b.jurisdictions[run.Jurisdiction] = struct{}{}
			}
		}
	}

	patterns := make([]Pattern, 0, len(buckets))
	for key, b := range buckets {
		share := float64(b.count) / float64(failed)
		class := ClassOneOff
		if share >= a.threshold {
			class = ClassSystemic
		}
		patterns = append(patterns, Pattern{
			Category:      key.category,
			Reason:        key.reason,
			Count:         b.count,
			Share:         share,
			Class:         class,
			Jurisdictions: sortedJurisdictions(b.jurisdictions),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		if patterns[i].Category != patterns[j].Category {
			return patterns[i].Category < patterns[j].Category
		}
		return patterns[i].Reason < patterns[j].Reason
	})

	span.SetAttributes(
		attribute.Int("report.total_runs", len(runs)),
		attribute.Int("report.failed_runs", failed),
		attribute.Int("report.patterns", len(patterns)),
	)
	return &Report{
		Since:       since,
		GeneratedAt: requestcontext.Now(ctx).UTC(),
		TotalRuns:   len(runs),
		FailedRuns:  failed,
		Patterns:    patterns,
	}, nil
}

// patternKeys expands one failed run into the patterns it belongs to. A run
// rejected by several filters, or failing several axioms, counts toward each
// of them, so shares can sum past one across patterns.
func patternKeys(run pipeline.ValidationRun) []patternKey {
	switch run.FailureCategory {
	case id.FailurePreValidationRejected:
		if len(run.Rejections) > 0 {
			keys := make([]patternKey, 0, len(run.Rejections))
			for _, rejection := range run.Rejections {
				keys = append(keys, patternKey{category: run.FailureCategory, reason: string(rejection.Code)})
			}
			return keys
		}
	case id.FailureAxiomViolation:
		var keys []patternKey
		for _, axiom := range run.Axioms {
			if axiom.Verdict == id.VerdictFail {
				keys = append(keys, patternKey{category: run.FailureCategory, reason: string(axiom.Axiom)})
			}
		}
		if len(keys) > 0 {
			return keys
		}
	}
	return []patternKey{{category: run.FailureCategory}}
}

func sortedJurisdictions(set map[id.JurisdictionID]struct{}) []id.JurisdictionID {
	if len(set) == 0 {
		return nil
	}
	out := make([]id.JurisdictionID, 0, len(set))
	for jurisdiction := range set {
		out = append(out, jurisdiction)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if len(out) > maxJurisdictions {
		out = out[:maxJurisdictions]
	}
	return out
}
