// Package server implements the HTTP API and the websocket endpoint of the caption service.
// Sessions are managed over REST, live audio and transcript events travel over one
// websocket per session, and Prometheus metrics are exposed at /metrics.
package server
