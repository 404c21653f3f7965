// Package items provides a generic hierarchical item store over a single
// DynamoDB table.
//
// Arbitrary typed, user-owned items live in one schemaless table and are
// organized into parent-child trees through a two-part composite key. The
// partition key addresses an item's parent (PARENTTYPE#parentId, or
// USER#ownerId for items without an explicit parent), and the sort key
// addresses the item itself (TYPE#id). Two global secondary indexes provide
// the remaining access paths: an identity index on (sk, pk) resolves any item
// by type+id without knowing its parent, and an owner index on (user, sk)
// lists everything a user owns, optionally narrowed to a type prefix.
//
// # Operations
//
// [Store] exposes six operations: Create, Read, Update, Delete, ListChildren
// and ListByOwner. All are stateless request/response calls; concurrency
// correctness is delegated to DynamoDB's per-key atomicity. The version
// counter in [Meta] is incremented with a storage-side atomic expression, so
// concurrent updates never lose increments, but the read-then-mutate pairs
// inside Update and Delete are not transactions: a concurrent delete may
// surface [ErrNotFound] to an updater, which is an accepted outcome.
//
// # Hierarchy guarantees
//
// Items created without parent information are placed under the synthetic
// USER#ownerId root, so no item is ever orphaned at creation time. Deletes
// are single point removals with no cascade; deleting a parent leaves its
// children reachable only through the identity index.
//
// # Pagination
//
// List operations return an opaque cursor whenever more results remain. The
// cursor is a capability token for resuming that exact scan; it must not be
// interpreted, and reusing it against a differently-shaped query fails with
// [ErrInvalidCursor] or yields undefined positioning.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - update/delete target does not exist or vanished mid-flight
//   - [ErrAlreadyExists] - create collided with an occupied key pair
//   - [ErrInvalidCursor] - cursor malformed, expired, or from another query shape
//   - [ErrUpstreamUnavailable] - transient DynamoDB fault, retryable by the caller
package items
