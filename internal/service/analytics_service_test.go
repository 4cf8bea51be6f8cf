package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/tenant"
	"github.com/ozpath/ozpath-api/pkg/config"
)

type mockAnalyticsRepo struct {
	counts map[models.ApplicationStatus]int
	calls  int
}

func (m *mockAnalyticsRepo) CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	m.calls++
	return m.counts, nil
}

type mockCache struct {
	values map[string][]byte
	sets   int
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if m.values == nil {
		return false, nil
	}
	if _, ok := m.values[key]; !ok {
		return false, nil
	}
	summary, isSummary := dest.(*models.PipelineSummary)
	if !isSummary {
		return false, nil
	}
	*summary = models.PipelineSummary{TotalApplications: 42, GeneratedAt: time.Now().UTC()}
	return true, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = []byte("cached")
	m.sets++
	return nil
}

func TestPipelineSummary(t *testing.T) {
	repo := &mockAnalyticsRepo{counts: map[models.ApplicationStatus]int{
		models.StatusDraft:           4,
		models.StatusSubmitted:       3,
		models.StatusApproved:        2,
		models.StatusCompleted:       1,
		models.StatusRejected:        1,
		models.StatusWithdrawn:       1,
		models.StatusDecisionPending: 2,
	}}
	cache := &mockCache{}
	svc := NewAnalyticsService(repo, cache, config.AnalyticsConfig{Enabled: true, CacheTTL: time.Minute}, nil)
	ctx := tenant.WithTenant(context.Background(), "tenant-1")

	summary, err := svc.PipelineSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, summary.TotalApplications)
	assert.Equal(t, 3, summary.Approved)
	assert.Equal(t, 4, summary.Decided)
	assert.InDelta(t, 0.75, summary.SuccessRate, 0.0001)
	assert.Equal(t, 1, cache.sets)

	// Second call is served from cache.
	cached, err := svc.PipelineSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, cached.TotalApplications)
	assert.Equal(t, 1, repo.calls)
}

func TestPipelineSummaryRequiresTenant(t *testing.T) {
	svc := NewAnalyticsService(&mockAnalyticsRepo{}, nil, config.AnalyticsConfig{}, nil)
	_, err := svc.PipelineSummary(context.Background())
	require.Error(t, err)
}
