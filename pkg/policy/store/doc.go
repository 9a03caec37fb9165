// Package store provides durable storage for rollout policies with
// optimistic concurrency control.
//
// The store is the single source of truth that both controllers and manual
// operator overrides contend on. Every write goes through compare-and-swap
// on the policy's monotonic version: a write carrying a stale version fails
// with policy.ErrVersionConflict and the caller retries from a fresh read.
// This totally orders state transitions per policy without any cross-policy
// locking.
//
// Two backends are provided: an in-memory store for tests and ephemeral
// deployments, and a SQLite store (WAL mode) for single-instance durable
// deployments. Every successful write also appends an immutable
// PolicyVersion snapshot, so version history survives restarts and
// "rollback to version N" never rewrites data.
package store
