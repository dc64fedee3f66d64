// Package progress provides the crawl event primitives and the non-blocking
// hub that fans them out to sinks. The crawl controller emits run lifecycle,
// fetch, and content change events; sinks turn them into logs, metrics,
// repository rows, or Pub/Sub notifications.
package progress
