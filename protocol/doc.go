// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format spoken between the termgate
// daemon and its clients: UTF-8 newline-delimited JSON (NDJSON), one
// object per line, each object tagged by an "op" field.
//
// The package has two halves:
//
//   - message.go: the inbound request union and the outbound message
//     structs, plus the op and error-code constants
//   - framer.go: incremental framing that turns an arbitrary chunking
//     of the byte stream into an ordered sequence of parsed requests
//
// Payload bytes (terminal output, terminal input) are carried as
// base64 in "data_b64" fields so that arbitrary binary data, including
// control sequences and embedded newlines, survives the line-oriented
// transport unmodified.
package protocol
