package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// WorkspaceLoader is the source of truth behind the cache. Implemented
// by workspaces.PostgresService.
type WorkspaceLoader interface {
	Get(ctx context.Context, id int64) (*workspaces.Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*workspaces.Workspace, error)
}

// WorkspaceCache is a redis read-through cache for workspace records.
// Workspace rows are read on nearly every request (the gate resolves a
// session's workspace); they change rarely. Cache errors degrade to
// loader reads, never to request failures.
type WorkspaceCache struct {
	loader WorkspaceLoader
	redis  *RedisClient
	ttl    time.Duration
	logger *logrus.Logger
}

// NewWorkspaceCache creates the cache. A 15 minute TTL bounds staleness
// for writes that bypass Invalidate.
func NewWorkspaceCache(loader WorkspaceLoader, redis *RedisClient, logger *logrus.Logger) *WorkspaceCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &WorkspaceCache{loader: loader, redis: redis, ttl: 15 * time.Minute, logger: logger}
}

func workspaceKey(id int64) string {
	return "workspace:id:" + strconv.FormatInt(id, 10)
}

func workspaceSlugKey(slug string) string {
	return "workspace:slug:" + slug
}

// Get returns the workspace, from cache when possible
func (c *WorkspaceCache) Get(ctx context.Context, id int64) (*workspaces.Workspace, error) {
	if ws := c.cached(ctx, workspaceKey(id)); ws != nil {
		return ws, nil
	}

	ws, err := c.loader.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, ws)
	return ws, nil
}

// GetBySlug returns the workspace by slug, from cache when possible
func (c *WorkspaceCache) GetBySlug(ctx context.Context, slug string) (*workspaces.Workspace, error) {
	if ws := c.cached(ctx, workspaceSlugKey(slug)); ws != nil {
		return ws, nil
	}

	ws, err := c.loader.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, ws)
	return ws, nil
}

// Invalidate drops a workspace from the cache. Callers invoke this after
// any workspace mutation (rename, plan change, suspension).
func (c *WorkspaceCache) Invalidate(ctx context.Context, ws *workspaces.Workspace) error {
	if err := c.redis.Delete(ctx, workspaceKey(ws.ID), workspaceSlugKey(ws.Slug)); err != nil {
		return fmt.Errorf("failed to invalidate workspace %d: %w", ws.ID, err)
	}
	return nil
}

func (c *WorkspaceCache) cached(ctx context.Context, key string) *workspaces.Workspace {
	val, found, err := c.redis.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).Debug("workspace cache read failed")
		return nil
	}
	if !found {
		return nil
	}

	ws := &workspaces.Workspace{}
	if err := json.Unmarshal([]byte(val), ws); err != nil {
		c.logger.WithError(err).Warn("corrupt workspace cache entry")
		return nil
	}
	return ws
}

func (c *WorkspaceCache) store(ctx context.Context, ws *workspaces.Workspace) {
	data, err := json.Marshal(ws)
	if err != nil {
		return
	}
	for _, key := range []string{workspaceKey(ws.ID), workspaceSlugKey(ws.Slug)} {
		if err := c.redis.Set(ctx, key, string(data), c.ttl); err != nil {
			c.logger.WithError(err).Debug("workspace cache write failed")
			return
		}
	}
}
