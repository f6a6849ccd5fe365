package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Registry file names under TESSERA_REGISTRY_DIR.
const (
	exclusionsFile     = "exclusions.yaml"
	expectedCountsFile = "expected_counts.yaml"
	organizationsFile  = "organizations.yaml"
	spatialRefsFile    = "spatial_refs.yaml"
	centroidsFile      = "centroids.yaml"
)

// LoadSet loads every registry file from dir. A missing file loads as an
// empty directory (the dependent checks degrade to null expectations); a
// present but malformed file is a startup error the operator must fix.
func LoadSet(dir string) (*Set, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return EmptySet(), nil
	}

	exclusions, err := LoadExclusions(filepath.Join(trimmed, exclusionsFile))
	if err != nil {
		return nil, err
	}
	expected, err := LoadExpectedCounts(filepath.Join(trimmed, expectedCountsFile))
	if err != nil {
		return nil, err
	}
	organizations, err := LoadOrganizations(filepath.Join(trimmed, organizationsFile))
	if err != nil {
		return nil, err
	}
	spatialRefs, err := LoadSpatialRefs(filepath.Join(trimmed, spatialRefsFile))
	if err != nil {
		return nil, err
	}
	centroids, err := LoadCentroids(filepath.Join(trimmed, centroidsFile))
	if err != nil {
		return nil, err
	}

	return &Set{
		Exclusions:     exclusions,
		ExpectedCounts: expected,
		Organizations:  organizations,
		SpatialRefs:    spatialRefs,
		Centroids:      centroids,
	}, nil
}

type exclusionsSchema struct {
	Exclusions []struct {
		Jurisdiction string `yaml:"jurisdiction"`
		VotingMethod string `yaml:"voting_method"`
		Seats        int    `yaml:"seats"`
		Source       string `yaml:"source"`
	} `yaml:"exclusions"`
}

// ParseExclusions decodes and validates an exclusions payload.
func ParseExclusions(data []byte) (*ExclusionRegistry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewExclusionRegistry(nil), nil
	}
	var schema exclusionsSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode exclusions: %w", err)
	}

	seen := make(map[id.JurisdictionID]bool, len(schema.Exclusions))
	entries := make([]ExclusionEntry, 0, len(schema.Exclusions))
	for i, rec := range schema.Exclusions {
		jid, err := id.ParseJurisdictionID(rec.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("exclusions[%d]: %w", i, err)
		}
		method, err := ParseVotingMethod(rec.VotingMethod)
		if err != nil {
			return nil, fmt.Errorf("exclusions[%d] %s: %w", i, jid, err)
		}
		if rec.Seats < 1 {
			return nil, fmt.Errorf("exclusions[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "seats must be positive"))
		}
		if strings.TrimSpace(rec.Source) == "" {
			return nil, fmt.Errorf("exclusions[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "source citation is required"))
		}
		if seen[jid] {
			return nil, fmt.Errorf("exclusions[%d]: %w", i,
				dErrors.New(dErrors.CodeConflict, "duplicate jurisdiction "+jid.String()))
		}
		seen[jid] = true
		entries = append(entries, ExclusionEntry{
			Jurisdiction: jid,
			VotingMethod: method,
			Seats:        rec.Seats,
			Source:       rec.Source,
		})
	}
	return NewExclusionRegistry(entries), nil
}

// LoadExclusions reads an exclusions file. Missing file = empty registry.
func LoadExclusions(path string) (*ExclusionRegistry, error) {
	data, err := readRegistryFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseExclusions(data)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return reg, nil
}

type expectedCountsSchema struct {
	ExpectedCounts []struct {
		Jurisdiction string `yaml:"jurisdiction"`
		Districts    int    `yaml:"districts"`
		Source       string `yaml:"source"`
	} `yaml:"expected_counts"`
}

// ParseExpectedCounts decodes and validates an expected-counts payload.
func ParseExpectedCounts(data []byte) (*ExpectedCounts, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewExpectedCounts(nil), nil
	}
	var schema expectedCountsSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode expected counts: %w", err)
	}

	seen := make(map[id.JurisdictionID]bool, len(schema.ExpectedCounts))
	entries := make([]ExpectedCountEntry, 0, len(schema.ExpectedCounts))
	for i, rec := range schema.ExpectedCounts {
		jid, err := id.ParseJurisdictionID(rec.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("expected_counts[%d]: %w", i, err)
		}
		if rec.Districts < 1 {
			return nil, fmt.Errorf("expected_counts[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "districts must be positive"))
		}
		if strings.TrimSpace(rec.Source) == "" {
			return nil, fmt.Errorf("expected_counts[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, "source citation is required"))
		}
		if seen[jid] {
			return nil, fmt.Errorf("expected_counts[%d]: %w", i,
				dErrors.New(dErrors.CodeConflict, "duplicate jurisdiction "+jid.String()))
		}
		seen[jid] = true
		entries = append(entries, ExpectedCountEntry{
			Jurisdiction: jid,
			Districts:    rec.Districts,
			Source:       rec.Source,
		})
	}
	return NewExpectedCounts(entries), nil
}

// LoadExpectedCounts reads an expected-counts file. Missing file = empty.
func LoadExpectedCounts(path string) (*ExpectedCounts, error) {
	data, err := readRegistryFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseExpectedCounts(data)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return reg, nil
}

type organizationsSchema struct {
	Organizations []struct {
		Organization string `yaml:"organization"`
		Jurisdiction string `yaml:"jurisdiction"`
	} `yaml:"organizations"`
}

// ParseOrganizations decodes and validates an organizations payload.
func ParseOrganizations(data []byte) (*OrganizationDirectory, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewOrganizationDirectory(nil), nil
	}
	var schema organizationsSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode organizations: %w", err)
	}

	seen := make(map[id.OrganizationID]bool, len(schema.Organizations))
	entries := make([]OrganizationEntry, 0, len(schema.Organizations))
	for i, rec := range schema.Organizations {
		org, err := id.ParseOrganizationID(rec.Organization)
		if err != nil {
			return nil, fmt.Errorf("organizations[%d]: %w", i, err)
		}
		jid, err := id.ParseJurisdictionID(rec.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("organizations[%d] %s: %w", i, org, err)
		}
		if seen[org] {
			return nil, fmt.Errorf("organizations[%d]: %w", i,
				dErrors.New(dErrors.CodeConflict, "duplicate organization "+org.String()))
		}
		seen[org] = true
		entries = append(entries, OrganizationEntry{Organization: org, Jurisdiction: jid})
	}
	return NewOrganizationDirectory(entries), nil
}

// LoadOrganizations reads an organizations file. Missing file = empty.
func LoadOrganizations(path string) (*OrganizationDirectory, error) {
	data, err := readRegistryFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseOrganizations(data)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return reg, nil
}

type spatialRefsSchema struct {
	SpatialRefs []struct {
		SRID         int    `yaml:"srid"`
		Jurisdiction string `yaml:"jurisdiction"`
	} `yaml:"spatial_refs"`
}

// ParseSpatialRefs decodes and validates a spatial-refs payload.
func ParseSpatialRefs(data []byte) (*SpatialRefDirectory, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewSpatialRefDirectory(nil), nil
	}
	var schema spatialRefsSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode spatial refs: %w", err)
	}

	seen := make(map[id.SRID]bool, len(schema.SpatialRefs))
	entries := make([]SpatialRefEntry, 0, len(schema.SpatialRefs))
	for i, rec := range schema.SpatialRefs {
		srid := id.SRID(rec.SRID)
		if !srid.IsValid() {
			return nil, fmt.Errorf("spatial_refs[%d]: %w", i,
				dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid srid %d", rec.SRID)))
		}
		jid, err := id.ParseJurisdictionID(rec.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("spatial_refs[%d] srid %d: %w", i, rec.SRID, err)
		}
		if seen[srid] {
			return nil, fmt.Errorf("spatial_refs[%d]: %w", i,
				dErrors.New(dErrors.CodeConflict, fmt.Sprintf("duplicate srid %d", rec.SRID)))
		}
		seen[srid] = true
		entries = append(entries, SpatialRefEntry{SRID: srid, Jurisdiction: jid})
	}
	return NewSpatialRefDirectory(entries), nil
}

// LoadSpatialRefs reads a spatial-refs file. Missing file = empty.
func LoadSpatialRefs(path string) (*SpatialRefDirectory, error) {
	data, err := readRegistryFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseSpatialRefs(data)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return reg, nil
}

type centroidsSchema struct {
	Centroids []struct {
		Jurisdiction string  `yaml:"jurisdiction"`
		Lon          float64 `yaml:"lon"`
		Lat          float64 `yaml:"lat"`
	} `yaml:"centroids"`
}

// ParseCentroids decodes and validates a centroids payload.
func ParseCentroids(data []byte) (*CentroidDirectory, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewCentroidDirectory(nil), nil
	}
	var schema centroidsSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode centroids: %w", err)
	}

	seen := make(map[id.JurisdictionID]bool, len(schema.Centroids))
	entries := make([]CentroidEntry, 0, len(schema.Centroids))
	for i, rec := range schema.Centroids {
		jid, err := id.ParseJurisdictionID(rec.Jurisdiction)
		if err != nil {
			return nil, fmt.Errorf("centroids[%d]: %w", i, err)
		}
		if rec.Lon < -180 || rec.Lon > 180 || rec.Lat < -90 || rec.Lat > 90 {
			return nil, fmt.Errorf("centroids[%d] %s: %w", i, jid,
				dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("coordinates out of range: %v, %v", rec.Lon, rec.Lat)))
		}
		if seen[jid] {
			return nil, fmt.Errorf("centroids[%d]: %w", i,
				dErrors.New(dErrors.CodeConflict, "duplicate jurisdiction "+jid.String()))
		}
		seen[jid] = true
		entries = append(entries, CentroidEntry{Jurisdiction: jid, Lon: rec.Lon, Lat: rec.Lat})
	}
	return NewCentroidDirectory(entries), nil
}

// LoadCentroids reads a centroids file. Missing file = empty.
func LoadCentroids(path string) (*CentroidDirectory, error) {
	data, err := readRegistryFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseCentroids(data)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", path, err)
	}
	return reg, nil
}

// readRegistryFile returns the file contents, or empty data when the file
// does not exist.
func readRegistryFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return data, nil
}
