//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed via `go install` or `go run` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - Regenerates internal/mocks from the ports
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0
//   Docs: https://github.com/uber-go/mock
//
// golangci-lint - Linting (honours the nolint directives in cmd/civicwatch)
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
//   Docs: https://golangci-lint.run
