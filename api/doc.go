// Package api defines the wire types of the LeadFlow HTTP API.
//
// # API Overview
//
//   - GET  /                        liveness banner
//   - POST /chat/{session_id}       one chat turn with the lead bot
//   - GET  /ws/chat/{session_id}    the same turn loop over a websocket
//   - POST /workflow/run            run the leadbot → emailagent graph once
//   - POST /api/v1/campaign         email every stored lead (admin auth)
//   - GET  /health, /ready, /version
//   - GET  /metrics                 Prometheus exposition (when metrics_port is 0)
//
// # Authentication
//
// Admin endpoints accept either an API key (server.api_keys) or an HS256
// bearer token signed with server.jwt_secret:
//
//	X-API-Key: your-api-key
//	Authorization: Bearer <jwt>
//
// # Base URL
//
//	http://localhost:8000
package api
