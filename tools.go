//go:build tools
// +build tools

// Package tools pins the code generators used by go:generate so that
// go.mod tracks them. Nothing here is compiled into the server.
package rendezvous

import (
	_ "go.uber.org/mock/mockgen"
)
