package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
)

func TestPoller_DedupesByID(t *testing.T) {
	siem := integrations.NewStubSIEMClient(
		integrations.RawAlert{ID: "a1", Severity: models.SeverityLow},
	)
	p := New(siem, Config{MaxAlertsPerPoll: 10, BatchSize: 10, SeenCacheCapacity: 100}, nil)

	first, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	siem.Push(integrations.RawAlert{ID: "a1", Severity: models.SeverityLow}, integrations.RawAlert{ID: "a2", Severity: models.SeverityLow})
	second, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "a2", second[0].ID)
}

func TestPoller_SortsBySeverityCriticalFirst(t *testing.T) {
	siem := integrations.NewStubSIEMClient(
		integrations.RawAlert{ID: "low1", Severity: models.SeverityLow},
		integrations.RawAlert{ID: "crit1", Severity: models.SeverityCritical},
		integrations.RawAlert{ID: "med1", Severity: models.SeverityMedium},
	)
	p := New(siem, Config{MaxAlertsPerPoll: 10, BatchSize: 10, SeenCacheCapacity: 100}, nil)

	batch, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "crit1", batch[0].ID)
	assert.Equal(t, "med1", batch[1].ID)
	assert.Equal(t, "low1", batch[2].ID)
}

func TestPoller_BatchSizeCapsReturn(t *testing.T) {
	siem := integrations.NewStubSIEMClient(
		integrations.RawAlert{ID: "a1"}, integrations.RawAlert{ID: "a2"}, integrations.RawAlert{ID: "a3"},
	)
	p := New(siem, Config{MaxAlertsPerPoll: 10, BatchSize: 2, SeenCacheCapacity: 100}, nil)

	batch, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	batch2, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch2, 1)
}

func TestPoller_SeenCacheEviction(t *testing.T) {
	cache := newLRUSet(2)
	cache.Add("a")
	cache.Add("b")
	cache.Add("c") // evicts "a"

	assert.False(t, cache.Contains("a"))
	assert.True(t, cache.Contains("b"))
	assert.True(t, cache.Contains("c"))
}

func TestPoller_RunDeliversBatchesUntilCancelled(t *testing.T) {
	siem := integrations.NewStubSIEMClient(integrations.RawAlert{ID: "a1"})
	p := New(siem, Config{Interval: 10 * time.Millisecond, MaxAlertsPerPoll: 10, BatchSize: 10, SeenCacheCapacity: 100}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := make(chan []integrations.RawAlert, 1)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	select {
	case batch := <-out:
		assert.Len(t, batch, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for poller batch")
	}

	<-done
}
