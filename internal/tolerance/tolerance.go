// Package tolerance derives the per-jurisdiction tolerance profile the
// prover judges against. Coastal jurisdictions get a wider coverage band
// because shoreline boundaries legitimately extend into water; every other
// knob is a flat constant, deliberately independent of jurisdiction size.
package tolerance

import (
	"fmt"

	"tessera/internal/platform/config"
	dErrors "tessera/pkg/domain-errors"
)

// Profile is the tolerance set one validation run was judged against. Runs
// persist the profile they used, so a later change of defaults never
// reinterprets history.
type Profile struct {
	Coastal          bool    `json:"coastal"`
	WaterFraction    float64 `json:"water_fraction"`
	OverlapEpsilonM2 float64 `json:"overlap_epsilon_m2"`
	OutsideRatioMax  float64 `json:"outside_ratio_max"`
	CoverageMin      float64 `json:"coverage_min"`
	CoverageMax      float64 `json:"coverage_max"`
}

// Deriver turns jurisdiction land/water areas into a Profile.
type Deriver struct {
	cfg config.ToleranceConfig
}

// NewDeriver validates the configured constants once at startup. Bad values
// are an operator mistake the process must not limp along with, so main
// fails fast on the returned error.
func NewDeriver(cfg config.ToleranceConfig) (*Deriver, error) {
	if cfg.OverlapEpsilonM2 <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("overlap epsilon must be positive, got %v", cfg.OverlapEpsilonM2))
	}
	if cfg.CoastalWaterFraction <= 0 || cfg.CoastalWaterFraction >= 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("coastal water fraction must be in (0, 1), got %v", cfg.CoastalWaterFraction))
	}
	if cfg.OutsideRatioMax <= 0 || cfg.OutsideRatioMax > 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("outside ratio max must be in (0, 1], got %v", cfg.OutsideRatioMax))
	}
	if cfg.CoverageMin <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("coverage min must be positive, got %v", cfg.CoverageMin))
	}
	if cfg.CoverageMaxInland <= cfg.CoverageMin {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("inland coverage max %v must exceed coverage min %v", cfg.CoverageMaxInland, cfg.CoverageMin))
	}
	if cfg.CoverageMaxCoastal <= cfg.CoverageMin {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("coastal coverage max %v must exceed coverage min %v", cfg.CoverageMaxCoastal, cfg.CoverageMin))
	}
	return &Deriver{cfg: cfg}, nil
}

// Derive computes the profile for a jurisdiction with the given geodesic
// land and water areas. Pure; two jurisdictions with the same areas always
// get the same profile.
//
// Coastal means the water share strictly exceeds the configured fraction.
// A jurisdiction at exactly the threshold is inland.
func (d *Deriver) Derive(landM2, waterM2 float64) Profile {
	var waterFraction float64
	if total := landM2 + waterM2; total > 0 {
		waterFraction = waterM2 / total
	}
	coastal := waterFraction > d.cfg.CoastalWaterFraction

	coverageMax := d.cfg.CoverageMaxInland
	if coastal {
		coverageMax = d.cfg.CoverageMaxCoastal
	}

	return Profile{
		Coastal:          coastal,
		WaterFraction:    waterFraction,
		OverlapEpsilonM2: d.cfg.OverlapEpsilonM2,
		OutsideRatioMax:  d.cfg.OutsideRatioMax,
		CoverageMin:      d.cfg.CoverageMin,
		CoverageMax:      coverageMax,
	}
}
