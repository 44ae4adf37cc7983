// Package semindex provides a write-serialization and dispatch gateway for a
// mutable semantic search index.
//
// The gateway sits between request-handling front ends (HTTP, CLI) and the
// index itself. It buffers document batches, serializes index mutations behind
// a single per-gateway lock, routes every index operation to either a local
// index or a cluster of remote shards, and executes named pipelines and
// multi-stage workflows, optionally on a recurring schedule.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│         Front Ends                  │  HTTP gateway, CLI
//	│   (gateway/http, cmd/semindex)      │
//	└─────────────────────────────────────┘
//	           ↓ call
//	┌─────────────────────────────────────┐
//	│        Application (app)            │  Buffering, mutation lock,
//	│  search/add/index/upsert/delete     │  dispatch, normalization,
//	│  pipelines, workflows, scheduler    │  action resolution
//	└─────────────────────────────────────┘
//	           ↓ one of
//	┌──────────────────┬──────────────────┐
//	│   index/memory   │  index/cluster   │  Same Capability interface;
//	│   (local index)  │  (shard fan-out) │  the app holds exactly one
//	└──────────────────┴──────────────────┘
//
// # Framework Packages
//
// Core:
//   - app: gateway facade composing buffer, lock, registries and scheduler
//   - index: the Capability interface and result types
//   - index/memory: local embedder-backed index with SQLite persistence
//   - index/cluster: HTTP shard router, interchangeable with a local index
//   - document: document model and the staging buffer
//
// Computation:
//   - embedding: text embedders (BM25 lexical, OpenAI-compatible HTTP)
//   - pipeline: named computation units and their factory
//   - workflow: multi-stage task execution and recurring schedules
//
// Infrastructure:
//   - config: YAML application settings
//   - errors: structured error handling
//   - metric: Prometheus metrics
//   - pkg/worker: worker pools
//   - pkg/retry: retry policies
//
// # Usage
//
//	settings, _ := config.Load("config.yml")
//	application, _ := app.New(settings)
//	defer application.Close()
//
//	application.Add(ctx, []any{"first document", "second document"})
//	application.Index(ctx)
//	results, _ := application.Search(ctx, "semantic query", 10)
//
// Mutating operations (Add, Index, Upsert, Delete) are serialized per
// Application instance; read operations take no lock.
package semindex
