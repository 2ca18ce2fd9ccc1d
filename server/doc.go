// Package server exposes an Engine over HTTP using echo.
//
// Callers identify themselves with the X-User-ID header. Requests without
// it are anonymous: they may chat without retrieval scoping or persistence
// but cannot upload, list or read history. Chat replies stream as
// server-sent events named token, done and error.
package server
