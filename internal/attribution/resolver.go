package attribution

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tessera/internal/attribution/metrics"
	"tessera/internal/geocode"
	"tessera/internal/geometry"
	"tessera/internal/registry"
	id "tessera/pkg/domain"
)

const tracerName = "tessera/internal/attribution"

// Resolver resolves candidate layers against read-only directories and the
// geocoding capability. It holds no mutable state; concurrent Resolve calls
// are safe.
type Resolver struct {
	organizations *registry.OrganizationDirectory
	spatialRefs   *registry.SpatialRefDirectory
	names         *nameIndex
	geocoder      geocode.Geocoder
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewResolver builds a resolver. geocoder may be nil when the capability is
// not deployed; method 2 then records itself as producing nothing.
func NewResolver(
	organizations *registry.OrganizationDirectory,
	spatialRefs *registry.SpatialRefDirectory,
	centroids *registry.CentroidDirectory,
	geocoder geocode.Geocoder,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Resolver {
	return &Resolver{
		organizations: organizations,
		spatialRefs:   spatialRefs,
		names:         newNameIndex(centroids),
		geocoder:      geocoder,
		logger:        logger,
		metrics:       m,
	}
}

type methodFunc func(ctx context.Context, layer geometry.CandidateLayer) (id.JurisdictionID, Attempt)

// Resolve assigns the layer to a jurisdiction. It never returns an error:
// collaborator failures are recorded on the attempt and resolution moves to
// the next method; exhausting all methods is a normal zero-confidence result.
func (r *Resolver) Resolve(ctx context.Context, layer geometry.CandidateLayer) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "attribution.Resolve",
		trace.WithAttributes(attribute.String("layer_id", layer.ID.String())))
	defer span.End()

	methods := []struct {
		method     id.EvidenceMethod
		confidence float64
		try        methodFunc
	}{
		{id.EvidenceOrganization, confidenceOrganization, r.tryOrganization},
		{id.EvidenceCentroidGeocode, confidenceCentroidGeocode, r.tryCentroidGeocode},
		{id.EvidenceNameParse, confidenceNameParse, r.tryNameParse},
		{id.EvidenceMetadataParse, confidenceMetadataParse, r.tryMetadataParse},
		{id.EvidenceSpatialRef, confidenceSpatialRef, r.trySpatialRef},
	}

	attempts := make([]Attempt, 0, len(methods))
	for _, m := range methods {
		start := time.Now()
		jid, attempt := m.try(ctx, layer)
		r.metrics.ObserveMethodLatency(m.method.String(), time.Since(start))
		attempts = append(attempts, attempt)

		if !jid.IsNil() {
			r.metrics.IncrementResolution(m.method.String())
			span.SetAttributes(
				attribute.String("method", m.method.String()),
				attribute.String("jurisdiction", jid.String()),
			)
			r.logger.DebugContext(ctx, "layer attributed",
				"layer_id", layer.ID,
				"jurisdiction", jid,
				"method", m.method,
				"confidence", m.confidence,
			)
			return Result{
				Jurisdiction: jid,
				Confidence:   m.confidence,
				Method:       m.method,
				Attempts:     attempts,
			}
		}
	}

	r.metrics.IncrementResolution(id.EvidenceNone.String())
	span.SetAttributes(attribute.Bool("resolved", false))
	r.logger.DebugContext(ctx, "layer attribution exhausted all methods", "layer_id", layer.ID)
	return Result{Confidence: 0, Attempts: attempts}
}

func (r *Resolver) tryOrganization(_ context.Context, layer geometry.CandidateLayer) (id.JurisdictionID, Attempt) {
	org := layer.Metadata.Organization
	if org.IsNil() {
		return "", Attempt{Method: id.EvidenceOrganization, Outcome: AttemptNoMatch, Detail: "layer carries no organization identity"}
	}
	jid, ok := r.organizations.Jurisdiction(org)
	if !ok {
		return "", Attempt{Method: id.EvidenceOrganization, Outcome: AttemptNoMatch, Detail: "organization " + org.String() + " not in directory"}
	}
	return jid, Attempt{Method: id.EvidenceOrganization, Outcome: AttemptMatched, Detail: "organization " + org.String()}
}

// tryCentroidGeocode makes at most one geocode call per layer, on the shared
// area-weighted centroid. A failing geocoder is a method that produced
// nothing, never a fatal error.
func (r *Resolver) tryCentroidGeocode(ctx context.Context, layer geometry.CandidateLayer) (id.JurisdictionID, Attempt) {
	if r.geocoder == nil {
		return "", Attempt{Method: id.EvidenceCentroidGeocode, Outcome: AttemptNoMatch, Detail: "geocoding capability not deployed"}
	}
	centroid, ok := geometry.WeightedCentroid(layer.Features)
	if !ok {
		return "", Attempt{Method: id.EvidenceCentroidGeocode, Outcome: AttemptNoMatch, Detail: "layer has no measurable geometry"}
	}

	result, err := r.geocoder.ReverseGeocode(ctx, centroid)
	if err != nil {
		r.logger.WarnContext(ctx, "centroid geocode failed",
			"layer_id", layer.ID,
			"error", err,
		)
		return "", Attempt{Method: id.EvidenceCentroidGeocode, Outcome: AttemptFailed, Detail: "geocode call failed"}
	}
	if result == nil {
		return "", Attempt{Method: id.EvidenceCentroidGeocode, Outcome: AttemptNoMatch, Detail: "no jurisdiction near centroid"}
	}
	return result.Jurisdiction, Attempt{Method: id.EvidenceCentroidGeocode, Outcome: AttemptMatched, Detail: "centroid geocoded via " + result.Source}
}

func (r *Resolver) tryNameParse(_ context.Context, layer geometry.CandidateLayer) (id.JurisdictionID, Attempt) {
	text := layer.Metadata.Name + " " + layer.Metadata.SourceURL
	jid, token, ok := r.names.match(text)
	if !ok {
		return "", Attempt{Method: id.EvidenceNameParse, Outcome: AttemptNoMatch, Detail: "no known place token in name or source url"}
	}
	return jid, Attempt{Method: id.EvidenceNameParse, Outcome: AttemptMatched, Detail: "place token " + token}
}

func (r *Resolver) tryMetadataParse(_ context.Context, layer geometry.CandidateLayer) (id.JurisdictionID, Attempt) {
	text := layer.Metadata.Copyright + " " + layer.Metadata.Description
	jid, token, ok := r.names.match(text)
	if !ok {
		return "", Attempt{Method: id.EvidenceMetadataParse, Outcome: AttemptNoMatch, Detail: "no known place token in copyright or description"}
	}
	return jid, Attempt{Method: id.EvidenceMetadataParse, Outcome: AttemptMatched, Detail: "place token " + token}
}

func (r *Resolver) trySpatialRef(_ context.Context, layer geometry.CandidateLayer) (id.JurisdictionID, Attempt) {
	srid := layer.Metadata.SpatialRef
	if srid.IsNil() {
		return "", Attempt{Method: id.EvidenceSpatialRef, Outcome: AttemptNoMatch, Detail: "layer declares no spatial reference"}
	}
	jid, ok := r.spatialRefs.RegionHint(srid)
	if !ok {
		return "", Attempt{Method: id.EvidenceSpatialRef, Outcome: AttemptNoMatch, Detail: "srid not in directory"}
	}
	return jid, Attempt{Method: id.EvidenceSpatialRef, Outcome: AttemptMatched, Detail: "srid region hint"}
}
