// Package reconcile diffs a local dataset against a cloud snapshot and merges them.
//
// A snapshot holds the collections videos, actors, subscriptions, discoveredWorks
// and settings. Diff classifies every record as cloud-only, local-only, identical
// or conflicting. Merge combines both sides under one of four strategies:
//
//   - smart: union of both sides, conflicts keep the record with the newer updatedAt
//   - local: keep local data, drop cloud-only records
//   - cloud: take cloud data, drop local-only records
//   - manual: like smart, with per-conflict choices collected by a Resolver
//
// Applier writes a merge result to a Store after taking a backup, verifies the
// written cardinality and can roll back to the latest backup. Session drives the
// whole flow as a small wizard.
package reconcile
