//go:build tools
// +build tools

// Package tools pins tool dependencies invoked through go generate (mockgen)
// so that go.mod and go.sum track them.
package batepapo

import (
	_ "go.uber.org/mock/mockgen"
)
