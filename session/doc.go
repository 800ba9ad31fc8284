// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the PTY-backed child process behind a terminal
// session. A Session is created by Start, which allocates a PTY pair,
// launches the requested program on the slave side, and begins relaying
// master-side output to the owner through the OnData callback. Exactly
// one OnExit callback follows the last OnData call once the child has
// been reaped.
//
// The daemon enforces single-session exclusivity and ownership; this
// package only manages one child's lifecycle: write, resize, signal,
// terminate, exit classification.
package session
