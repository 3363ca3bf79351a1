// Package scantrail defines the event record at the core of a reconnaissance
// scan's provenance graph.
//
// Every fact discovered during a scan is an Event: a typed text payload with
// confidence, visibility and risk scores, the name of the producer module that
// found it, and a reference to the hash of the event that caused it. Those
// source references form a directed acyclic lineage graph rooted at a single
// synthetic ROOT event per scan instance.
//
// The subpackages build the rest of the system around this record:
//
//   - taxonomy: the fixed registry of known event types
//   - store: the durable SQLite-backed event store
//   - lineage: ancestor/descendant traversal over the stored graph
//   - producer: the behavioral contract every event producer implements
//   - config: scan option maps and loaders
//   - observability: structured logging, metrics and tracing
package scantrail
