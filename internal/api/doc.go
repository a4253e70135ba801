// Package api hosts the render service's HTTP server. Notable routes:
//   - POST /api/blue/v1/render submits a render and answers when it finishes.
//   - GET /api/blue/v1/presets lists the preset names and the default.
//   - GET /api/blue/v1/diritems/{token}/{path} lists a directory of the caller's tree.
//   - POST /api/generic/v1/create enables the blue service when allow_create is set.
//   - GET / sends signed-in users to /fs or to the setup page.
//   - GET /fs/{path} browses the blue tree and serves rendered files.
//   - GET /render serves the render page for a source and target.
//   - GET /static/* serves the page scripts and stylesheet.
//   - GET /healthz, /readyz for health checks and /metrics for Prometheus scraping.
package api
