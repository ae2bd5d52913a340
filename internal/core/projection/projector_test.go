package projection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/driver"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/store"
	"github.com/agenthands/crosswalk/internal/store/storetest"
)

func seed(t *testing.T) (*store.Store, []model.Control, []model.Control) {
	t.Helper()
	s := storetest.New(t)
	storetest.SeedProduct(t, s, "a", true)
	storetest.SeedProduct(t, s, "b", true)
	storetest.SeedProduct(t, s, "hidden", false)
	ca := storetest.SeedControls(t, s, "a", "a0", "a1", "a2")
	cb := storetest.SeedControls(t, s, "b", "b0", "b1")
	storetest.SeedControls(t, s, "hidden", "h0")

	ctx := context.Background()
	require.NoError(t, s.UpsertEdgePair(ctx, ca[0].ID, cb[0].ID, 0.9))
	require.NoError(t, s.UpsertEdgePair(ctx, ca[2].ID, cb[1].ID, 0.87))
	return s, ca, cb
}

func newProjector(d driver.GraphDriver, s Source) *Projector {
	p := New(d, s, 2, logger.Nop(), nil)
	p.NewRunID = func() string { return "run-1" }
	return p
}

func TestSync_ProjectsSnapshot(t *testing.T) {
	s, ca, _ := seed(t)
	// a2 is retired; its edges stay in the store but are not projected
	_, err := s.SyncControls(context.Background(), "a", ca[:2])
	require.NoError(t, err)

	d := &MockDriver{Removed: 1}
	res, err := newProjector(d, s).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{RunID: "run-1", Products: 2, Controls: 4, Edges: 2, Removed: 3}, res)
	assert.Equal(t, 1, d.Indexed)

	products := d.callsFor(driver.UpsertProductsQuery)
	require.Len(t, products, 1)
	assert.Equal(t, "run-1", products[0].Params["run"])

	controls := d.callsFor(driver.UpsertControlsQuery)
	require.Len(t, controls, 2, "four controls in batches of two")
	for _, c := range controls {
		rows := c.Params["rows"].([]map[string]interface{})
		for _, r := range rows {
			assert.NotEqual(t, "hidden", r["product_id"])
		}
	}

	edges := d.callsFor(driver.UpsertEdgesQuery)
	require.Len(t, edges, 1)
	rows := edges[0].Params["rows"].([]map[string]interface{})
	assert.Len(t, rows, 2)
	assert.Equal(t, 0.9, rows[0]["confidence"])

	last := d.Calls[len(d.Calls)-1]
	assert.Equal(t, driver.DeleteStaleProductsQuery, last.Query)
}

func TestSync_IndicesBuiltOnce(t *testing.T) {
	s, _, _ := seed(t)
	d := &MockDriver{}
	p := newProjector(d, s)

	_, err := p.Sync(context.Background())
	require.NoError(t, err)
	_, err = p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Indexed)
}

func TestSync_WriteFailureSkipsPrune(t *testing.T) {
	s, _, _ := seed(t)
	boom := errors.New("connection reset")
	d := &MockDriver{FailOn: "MAPS_TO]->(t)", Err: boom}

	_, err := newProjector(d, s).Sync(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, d.callsFor(driver.DeleteStaleEdgesQuery))
	assert.Empty(t, d.callsFor(driver.DeleteStaleControlsQuery))
}

func TestSync_Disabled(t *testing.T) {
	var p *Projector
	assert.False(t, p.Enabled())
	_, err := p.Sync(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)

	p = New(nil, storetest.New(t), 0, logger.Nop(), nil)
	_, err = p.Sync(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}
