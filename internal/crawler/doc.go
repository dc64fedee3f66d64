// Package crawler defines the domain types, collaborator interfaces, run
// configuration, and error taxonomy shared by the adaptive crawl controller
// and its components (frontier, rate governor, fingerprinting, versioning).
package crawler
