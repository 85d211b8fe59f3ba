// Package main hosts the reader service entrypoint.
//
// Architecture overview:
//   - Event bus: internal/events.Bus is the in-process spine. The browser
//     watcher publishes route and chapter events onto it, the tracker consumes
//     them and publishes progress, and the metrics sink, position recorder,
//     and SSE stream all subscribe without the producers knowing about them.
//   - Tracker: internal/tracker maintains the per-book chapter estimate cache
//     and the progress state machine: priority-windowed event arbitration,
//     debounced page-turn direction, estimate correction, and the title-match
//     fallback after table-of-contents jumps.
//   - Settings: internal/settings keeps the shared record under an optimistic
//     version lock; external snapshots are reconciled through the version
//     rule and announced on the bus when accepted.
//   - Persistence: internal/storage abstracts chapter metadata and position
//     checkpoints over Postgres (pgx) or an in-memory store. The recorder
//     converts published progress back into durable positions.
//   - Browser: internal/adapter/browser attaches to Chrome over the DevTools
//     protocol, classifies navigations against the site table, and serves
//     document titles for the tracker's re-anchoring fallback.
//   - HTTP API: internal/api.Server exposes health, metrics, progress,
//     settings, and an SSE stream of bus traffic.
//
// Operational notes:
//   - Configuration comes from Viper (file plus READERD_* env overrides);
//     zap provides structured logging; Prometheus collectors are exported on
//     /metrics. Shutdown is coordinated via signal.NotifyContext.
//   - Run locally: go run ./cmd/readerd -config config.yaml. Without a
//     database DSN the service runs on the in-memory store; without
//     browser.enabled it serves the API and accepts synthetic events only.
package main
