// Package store defines the persistence boundaries for crawl runs and content
// versions. Implementations live in internal/storage; this package must not
// import database drivers or concrete clients.
package store
