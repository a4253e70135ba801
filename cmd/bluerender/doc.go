// Package main hosts the render service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes the render, presets, diritems and create APIs, the render and file
//     browser pages with their embedded scripts, health checks and metrics. Render requests are authenticated by session token, their paths resolved inside
//     the owning account's tree (shared folders included), and checked before admission.
//   - Admission: internal/jobs.Runner limits each account to max_concurrent running renders plus queue_limit
//     waiting ones, records the job and waits for the worker's reply for at most render.timeout_seconds.
//   - Dispatcher & queue: admitted jobs flow through a bounded in-memory queue sized by jobs.queue_depth and are
//     fanned out to jobs.workers workers.
//   - Render pipeline: a worker loads the preset, renders the source file with headless Chrome (chromedp), writes
//     the artifact into the account's blue/ tree, mirrors it to GCS when a bucket is set, and publishes a
//     render-completed message to Pub/Sub when a topic is set.
//   - Configuration & plumbing: Viper populates config from env (BLUE_*) and an optional file; zap provides
//     structured logging; Prometheus metrics are exported at /metrics; accounts come from Postgres when db.dsn is
//     set and from the accounts seed list otherwise.
//
// Quick checklist:
//   - Configure env vars: BLUE_SERVER_PORT, BLUE_STORAGE_USERS_DIR, BLUE_RENDER_PRESETS_DIR, BLUE_HEADLESS_ENABLED,
//     BLUE_DB_DSN, BLUE_STORAGE_GCS_BUCKET, BLUE_PUBSUB_PROJECT_ID and BLUE_PUBSUB_TOPIC_NAME as needed.
//   - Run locally: go run ./cmd/bluerender -config config.yaml
//   - Shutdown: SIGINT/SIGTERM stops the HTTP server, closes the queue and lets in-flight renders finish.
package main
