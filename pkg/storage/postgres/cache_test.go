package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// countingLoader serves a fixed workspace and counts database hits
type countingLoader struct {
	ws   *workspaces.Workspace
	hits int
}

func (l *countingLoader) Get(_ context.Context, id int64) (*workspaces.Workspace, error) {
	l.hits++
	if l.ws == nil || l.ws.ID != id {
		return nil, apierr.NotFound("workspace %d not found", id)
	}
	return l.ws, nil
}

func (l *countingLoader) GetBySlug(_ context.Context, slug string) (*workspaces.Workspace, error) {
	l.hits++
	if l.ws == nil || l.ws.Slug != slug {
		return nil, apierr.NotFound("workspace %q not found", slug)
	}
	return l.ws, nil
}

func newTestCache(t *testing.T) (*WorkspaceCache, *countingLoader) {
	t.Helper()
	rc, _ := newTestRedis(t)
	loader := &countingLoader{ws: &workspaces.Workspace{
		ID:   1,
		Slug: "acme",
		Name: "Acme",
		Plan: workspaces.PlanPro,
	}}
	return NewWorkspaceCache(loader, rc, discardLogger()), loader
}

func TestWorkspaceCacheReadThrough(t *testing.T) {
	cache, loader := newTestCache(t)
	ctx := context.Background()

	ws, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "acme", ws.Slug)
	assert.Equal(t, 1, loader.hits)

	ws, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, workspaces.PlanPro, ws.Plan)
	assert.Equal(t, 1, loader.hits, "second read served from cache")
}

func TestWorkspaceCachePrimesBothKeys(t *testing.T) {
	cache, loader := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, 1)
	require.NoError(t, err)

	// Slug lookup hits the cache entry written by the ID lookup.
	ws, err := cache.GetBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ws.ID)
	assert.Equal(t, 1, loader.hits)
}

func TestWorkspaceCacheInvalidate(t *testing.T) {
	cache, loader := newTestCache(t)
	ctx := context.Background()

	ws, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, ws))

	loader.ws.Plan = workspaces.PlanEnterprise
	ws, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, workspaces.PlanEnterprise, ws.Plan)
	assert.Equal(t, 2, loader.hits)
}

func TestWorkspaceCachePassesThroughNotFound(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Get(context.Background(), 99)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestWorkspaceCacheDegradesWhenRedisDown(t *testing.T) {
	rc, mr := newTestRedis(t)
	loader := &countingLoader{ws: &workspaces.Workspace{ID: 1, Slug: "acme"}}
	cache := NewWorkspaceCache(loader, rc, discardLogger())
	mr.Close()

	ws, err := cache.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ws.ID)
	assert.Equal(t, 1, loader.hits)
}
