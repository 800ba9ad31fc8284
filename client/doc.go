// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the Go client for the termgate daemon. It dials
// the daemon's unix socket, speaks the line-delimited JSON protocol,
// and offers both a low-level request API and a full terminal attach
// loop that puts the local terminal in raw mode and relays bytes in
// both directions.
package client
