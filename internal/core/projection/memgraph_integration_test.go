//go:build integration

package projection

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/driver"
	"github.com/agenthands/crosswalk/internal/logger"
)

func TestMemgraph_SyncAndPrune(t *testing.T) {
	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		t.Skip("MEMGRAPH_URI not set")
	}
	ctx := context.Background()
	d, err := driver.NewMemgraphDriver(ctx, uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"), logger.Nop())
	require.NoError(t, err)
	defer d.Close(ctx)
	defer func() {
		_, _ = d.ExecuteQuery(ctx, "MATCH (n) WHERE n:Product OR n:Control DETACH DELETE n", nil)
	}()

	s, _, _ := seed(t)
	p := New(d, s, 1, logger.Nop(), nil)

	res, err := p.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Edges)

	require.NoError(t, s.UpsertProduct(ctx, model.Product{ID: "b", Name: "Product b", Premium: true, Approved: false}))
	res, err = p.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Edges)
	assert.Positive(t, res.Removed)

	out, err := d.ExecuteQuery(ctx, "MATCH ()-[r:MAPS_TO]->() RETURN count(r) AS n", nil)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, int64(0), out.Records[0].Values[0])
}
