//go:build integration

package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/crosswalk/internal/store/storetest"
)

// Concurrent writers of the same pair against Postgres, where the pool
// actually runs transactions in parallel.
func TestPostgres_ConcurrentEdgeWriters(t *testing.T) {
	ctx := context.Background()
	s := storetest.Postgres(t)
	storetest.SeedProduct(t, s, "pg-a", true)
	storetest.SeedProduct(t, s, "pg-b", true)
	ca := storetest.SeedControls(t, s, "pg-a", "x", "y")
	cb := storetest.SeedControls(t, s, "pg-b", "x", "y")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			conf := 0.85 + float64(i%10)/100
			// half the writers come from the other side of the pair
			if i%2 == 0 {
				assert.NoError(t, s.UpsertEdgePair(ctx, ca[0].ID, cb[0].ID, conf))
			} else {
				assert.NoError(t, s.UpsertEdgePair(ctx, cb[0].ID, ca[0].ID, conf))
			}
		}()
	}
	wg.Wait()

	edges, err := s.AllEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, edges[0].Confidence, edges[1].Confidence, "both directions carry the last writer's confidence")

	n, err := s.ClearPairEdges(ctx, "pg-b", "pg-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPostgres_CoverageCounts(t *testing.T) {
	ctx := context.Background()
	s := storetest.Postgres(t)
	for _, id := range []string{"pg-c", "pg-d"} {
		storetest.SeedProduct(t, s, id, true)
	}
	cc := storetest.SeedControls(t, s, "pg-c", "1", "2", "3", "4")
	cd := storetest.SeedControls(t, s, "pg-d", "1", "2", "3")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.UpsertEdgePair(ctx, cc[i].ID, cd[i].ID, 0.9))
	}

	mapped, err := s.CountMappedControls(ctx, "pg-c", []string{"pg-d"})
	require.NoError(t, err)
	total, err := s.CountActiveControls(ctx, "pg-c")
	require.NoError(t, err)
	assert.Equal(t, "3/4", fmt.Sprintf("%d/%d", mapped, total))
}
