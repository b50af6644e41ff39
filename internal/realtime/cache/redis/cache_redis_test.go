//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shepherd/internal/checkin/models"
	id "shepherd/pkg/domain"
	"shepherd/pkg/platform/sentinel"
	"shepherd/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Store
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = New(s.redis.Client)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestApplyChild_LastWriteWins() {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	taken, err := s.store.ApplyChild(ctx, models.Child{ID: "child-1", Status: id.StatusCheckedIn}, t0)
	s.Require().NoError(err)
	s.True(taken)

	// A stale write loses even across processes: the compare runs in Redis.
	taken, err = s.store.ApplyChild(ctx, models.Child{ID: "child-1", Status: id.StatusNotInService}, t0.Add(-time.Minute))
	s.Require().NoError(err)
	s.False(taken)

	// Replay at the same timestamp is a no-op.
	taken, err = s.store.ApplyChild(ctx, models.Child{ID: "child-1", Status: id.StatusCheckedIn}, t0)
	s.Require().NoError(err)
	s.False(taken)

	child, err := s.store.Child(ctx, "child-1")
	s.Require().NoError(err)
	s.Equal(id.StatusCheckedIn, child.Status)
}

func (s *RedisCacheSuite) TestApplyService_RoundTrip() {
	ctx := context.Background()
	svc := models.KidsService{ID: "svc-1", Name: "Sprouts", MaxCapacity: 10, CurrentCapacity: 3}

	taken, err := s.store.ApplyService(ctx, svc, time.Now())
	s.Require().NoError(err)
	s.True(taken)

	got, err := s.store.Service(ctx, "svc-1")
	s.Require().NoError(err)
	s.Equal(svc.CurrentCapacity, got.CurrentCapacity)
}

func (s *RedisCacheSuite) TestLookupMiss() {
	_, err := s.store.Record(context.Background(), "ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestTTLExpiresEntries() {
	ctx := context.Background()
	store := New(s.redis.Client, WithTTL(100*time.Millisecond))

	_, err := store.ApplyChild(ctx, models.Child{ID: "child-ttl"}, time.Now())
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)

	_, err = store.Child(ctx, "child-ttl")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
