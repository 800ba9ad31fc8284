// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon implements the termgate supervisor: a Unix-socket
// server exposing at most one PTY session at a time to local peer
// clients over the NDJSON protocol.
//
// The Server owns the listening socket and the single-session slot.
// Each accepted connection gets its own goroutine and a protocol
// framer; an optional shared-secret handshake gates everything except
// hello. The connection that spawns the session becomes its owner and
// the sole receiver of its data and exit messages; only the owner may
// write, resize, signal or close it. The slot is a mutex-guarded
// nullable field so spawn exclusivity is checked-and-set atomically
// with no window for a second spawn to slip through.
//
// Teardown discipline: an owner disconnect force-kills the session
// (logged as abnormal), a clean close or child exit frees the slot for
// the next spawn, and daemon shutdown kills whatever is running,
// closes the listener, and removes the socket file.
package daemon
