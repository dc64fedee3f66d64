// Package robots answers robots.txt allow/disallow questions with a per-host
// cache. Lookups fail open: an unreachable or unparsable robots.txt allows
// the URL.
package robots
