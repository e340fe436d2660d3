//go:build integration

// Package integration provides end-to-end tests for the p4k library.
//
// Remote tests require Docker and serve fixture archives from an nginx
// container started with testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
