//go:build integration

package geocode_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/suite"

	"tessera/internal/geocode"
	id "tessera/pkg/domain"
	"tessera/pkg/testutil/containers"
)

type countingGeocoder struct {
	calls  atomic.Int32
	result *geocode.Result
}

func (c *countingGeocoder) ReverseGeocode(context.Context, orb.Point) (*geocode.Result, error) {
	c.calls.Add(1)
	return c.result, nil
}

type CachedGeocoderSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCachedGeocoderSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedGeocoderSuite))
}

func (s *CachedGeocoderSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedGeocoderSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CachedGeocoderSuite) newCached(inner geocode.Geocoder) *geocode.CachedGeocoder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return geocode.NewCachedGeocoder(inner, s.redis.Client, time.Hour, logger)
}

func (s *CachedGeocoderSuite) TestSecondLookupHitsCache() {
	ctx := context.Background()
	inner := &countingGeocoder{result: &geocode.Result{
		Jurisdiction: id.JurisdictionID("us/il/chicago"),
		Source:       "gazetteer",
		DistanceM:    120,
	}}
	cached := s.newCached(inner)
	pt := orb.Point{-87.63, 41.88}

	first, err := cached.ReverseGeocode(ctx, pt)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Equal(id.JurisdictionID("us/il/chicago"), first.Jurisdiction)

	second, err := cached.ReverseGeocode(ctx, pt)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(int32(1), inner.calls.Load(), "second lookup must not reach the inner geocoder")
}

func (s *CachedGeocoderSuite) TestNegativeAnswersAreCached() {
	ctx := context.Background()
	inner := &countingGeocoder{result: nil}
	cached := s.newCached(inner)
	pt := orb.Point{-40.0, 35.0}

	result, err := cached.ReverseGeocode(ctx, pt)
	s.Require().NoError(err)
	s.Nil(result)

	result, err = cached.ReverseGeocode(ctx, pt)
	s.Require().NoError(err)
	s.Nil(result)
	s.Equal(int32(1), inner.calls.Load(), "a cached no-answer must not reach the inner geocoder")
}

func (s *CachedGeocoderSuite) TestCorruptEntryFallsThrough() {
	ctx := context.Background()
	inner := &countingGeocoder{result: &geocode.Result{
		Jurisdiction: id.JurisdictionID("us/il/chicago"),
		Source:       "gazetteer",
	}}
	cached := s.newCached(inner)
	pt := orb.Point{-87.63, 41.88}

	err := s.redis.Client.Set(ctx, "geocode:-87.63000,41.88000", "{not json", time.Hour).Err()
	s.Require().NoError(err)

	result, err := cached.ReverseGeocode(ctx, pt)
	s.Require().NoError(err)
	s.Require().NotNil(result)
	s.Equal(id.JurisdictionID("us/il/chicago"), result.Jurisdiction)
	s.Equal(int32(1), inner.calls.Load())
}

func (s *CachedGeocoderSuite) TestDistinctPointsCacheSeparately() {
	ctx := context.Background()
	inner := &countingGeocoder{result: &geocode.Result{
		Jurisdiction: id.JurisdictionID("us/il/chicago"),
		Source:       "gazetteer",
	}}
	cached := s.newCached(inner)

	_, err := cached.ReverseGeocode(ctx, orb.Point{-87.63, 41.88})
	s.Require().NoError(err)
	_, err = cached.ReverseGeocode(ctx, orb.Point{-89.65, 39.78})
	s.Require().NoError(err)

	s.Equal(int32(2), inner.calls.Load())
}
