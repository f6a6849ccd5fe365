// Package prevalidate runs the cheap structural filters that gate the
// geometric proof. Four independent checks either continue or reject with a
// coded reason; any rejection routes the layer to quarantine before a single
// intersection is computed, because the proof costs orders of magnitude more
// than these lookups.
package prevalidate

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"tessera/internal/boundary"
	"tessera/internal/geometry"
	"tessera/internal/platform/config"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Feature-count ratio bounds. A layer with far fewer or far more features
// than expected is the wrong granularity (county data for a city, precincts
// for wards) no matter how plausible its geometry looks.
const (
	countRatioMin = 0.3
	countRatioMax = 3.0
)

// Reason pairs a filter code with a human-readable explanation.
type Reason struct {
	Code   id.RejectReason `json:"code"`
	Detail string          `json:"detail"`
}

// Outcome is the combined result of all filters. EdgeCases are non-fatal
// flags that force human review of an otherwise continuing run; Skipped
// records checks that could not run for lack of configuration. A layer
// continues iff Reasons is empty.
type Outcome struct {
	Reasons   []Reason `json:"reasons,omitempty"`
	EdgeCases []Reason `json:"edge_cases,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
}

// Accepted reports whether the layer may proceed to the geometric proof.
func (o Outcome) Accepted() bool { return len(o.Reasons) == 0 }

// Blocked phrases mark layers that are almost certainly not electoral
// districts; allowed phrases rescue names that carry district vocabulary
// alongside a blocked one ("School Board Districts" stays in).
var (
	blockedKeywords = []string{"precinct", "zoning", "parcel", "utility", "sewer", "pavement", "school", "census tract"}
	allowedKeywords = []string{"council", "ward", "district", "alderman", "commissioner", "borough"}
)

// Validator applies the filters with configured centroid-distance bands.
type Validator struct {
	nearM float64
	farM  float64
}

// NewValidator builds a validator, rejecting threshold configurations that
// would make the review band empty or inverted.
func NewValidator(cfg config.PrevalidateConfig) (*Validator, error) {
	if cfg.CentroidNearM <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "centroid near threshold must be positive")
	}
	if cfg.CentroidFarM <= cfg.CentroidNearM {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "centroid far threshold must exceed the near threshold")
	}
	return &Validator{nearM: cfg.CentroidNearM, farM: cfg.CentroidFarM}, nil
}

// Validate runs all four filters against the layer and its attributed
// jurisdiction. The keyword filter corroborates but never decides alone:
// when no other filter rejected, its hit is downgraded to a review flag so
// a geometrically valid layer is never discarded on name evidence.
func (v *Validator) Validate(layer geometry.CandidateLayer, jur *boundary.Jurisdiction, expected int, expectedKnown bool) Outcome {
	var out Outcome

	v.checkFeatureCount(&out, layer, expected, expectedKnown)
	v.checkCentroidDistance(&out, layer, jur)
	v.checkBoundingBox(&out, layer, jur)

	if reason, hit := checkKeywords(layer.Metadata.Name); hit {
		if len(out.Reasons) > 0 {
			out.Reasons = append(out.Reasons, reason)
		} else {
			out.EdgeCases = append(out.EdgeCases, reason)
		}
	}
	return out
}

func (v *Validator) checkFeatureCount(out *Outcome, layer geometry.CandidateLayer, expected int, expectedKnown bool) {
	if !expectedKnown || expected <= 0 {
		out.Skipped = append(out.Skipped, "district count expectation unknown; feature count ratio not checked")
		return
	}
	actual := layer.FeatureCount()
	ratio := float64(actual) / float64(expected)
	if ratio < countRatioMin || ratio > countRatioMax {
		out.Reasons = append(out.Reasons, Reason{
			Code: id.RejectFeatureCountRatio,
			Detail: fmt.Sprintf("%d features against %d expected, ratio %.2f outside [%.1f, %.1f]",
				actual, expected, ratio, countRatioMin, countRatioMax),
		})
	}
}

func (v *Validator) checkCentroidDistance(out *Outcome, layer geometry.CandidateLayer, jur *boundary.Jurisdiction) {
	layerCentroid, ok := geometry.WeightedCentroid(layer.Features)
	if !ok {
		out.Skipped = append(out.Skipped, "layer has no measurable geometry; centroid distance not checked")
		return
	}
	jurCentroid, ok := geometry.WeightedCentroid([]geometry.Feature{{Geometry: jur.Geometry}})
	if !ok {
		out.Skipped = append(out.Skipped, "jurisdiction boundary has no measurable geometry; centroid distance not checked")
		return
	}

	distanceM := geometry.Distance(layerCentroid, jurCentroid)
	switch {
	case distanceM < v.nearM:
		// Close enough to need no comment.
	case distanceM > v.farM:
		out.Reasons = append(out.Reasons, Reason{
			Code: id.RejectCentroidDistance,
			Detail: fmt.Sprintf("layer centroid %.1f km from jurisdiction centroid, beyond the %.0f km rejection threshold",
				distanceM/1000, v.farM/1000),
		})
	default:
		// Distance in this band cannot distinguish a wrong layer in the
		// same metro area from a correct but oddly shaped jurisdiction.
		// Escalate to a human instead of deciding.
		out.EdgeCases = append(out.EdgeCases, Reason{
			Code: id.RejectCentroidDistance,
			Detail: fmt.Sprintf("layer centroid %.1f km from jurisdiction centroid, inside the [%.0f, %.0f] km review band",
				distanceM/1000, v.nearM/1000, v.farM/1000),
		})
	}
}

func (v *Validator) checkBoundingBox(out *Outcome, layer geometry.CandidateLayer, jur *boundary.Jurisdiction) {
	if layer.FeatureCount() == 0 {
		out.Skipped = append(out.Skipped, "layer has no features; bounding box overlap not checked")
		return
	}
	layerBound := layer.Bound()
	jurBound := jur.Geometry.Bound()
	if !layerBound.Intersects(jurBound) {
		out.Reasons = append(out.Reasons, Reason{
			Code: id.RejectBBoxDisjoint,
			Detail: fmt.Sprintf("layer bounding box %s does not touch jurisdiction bounding box %s",
				formatBound(layerBound), formatBound(jurBound)),
		})
	}
}

// checkKeywords scans the declared layer name. A hit means a blocked phrase
// appeared with no district-style phrase to rescue it; the caller decides
// whether that corroborates a rejection or merely flags the run.
func checkKeywords(name string) (Reason, bool) {
	normalized := strings.ToLower(name)
	if normalized == "" {
		return Reason{}, false
	}

	var blocked string
	for _, kw := range blockedKeywords {
		if strings.Contains(normalized, kw) {
			blocked = kw
			break
		}
	}
	if blocked == "" {
		return Reason{}, false
	}
	for _, kw := range allowedKeywords {
		if strings.Contains(normalized, kw) {
			return Reason{}, false
		}
	}
	return Reason{
		Code:   id.RejectNameKeyword,
		Detail: fmt.Sprintf("layer name matches blocked keyword %q with no district-style keyword", blocked),
	}, true
}

func formatBound(b orb.Bound) string {
	return fmt.Sprintf("[%.4f, %.4f, %.4f, %.4f]", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}
