// Package postgres provides the storage infrastructure: the postgres
// connection manager, versioned schema migrations, the optional redis
// cache layer, and the S3 client used for audit archives.
//
// # Overview
//
// ConnectionManager separates write traffic (Primary) from read traffic
// (Replica, round-robin with primary fallback) and evicts replicas that
// fail health checks. Migrate applies the versioned schema, one
// transaction per migration, tracked in schema_migrations.
//
// Redis is optional. When configured, WorkspaceCache serves workspace
// reads through it with invalidation on mutation, and the same client
// backs the distributed rate limiter in pkg/middleware. Cache failures
// degrade to database reads.
package postgres
