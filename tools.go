//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// mockgen is invoked through go generate; importing it here keeps it
// pinned in go.mod.
package nexchat

import (
	_ "go.uber.org/mock/mockgen"
)
