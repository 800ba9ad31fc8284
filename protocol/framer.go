// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Framer incrementally decodes an NDJSON byte stream into requests.
// Feed it chunks in arrival order; it delivers every complete line
// through OnMessage regardless of how the stream is chunked, and
// reports unparsable lines through OnError without disturbing the
// framing of subsequent lines.
//
// A Framer is not safe for concurrent use; the daemon drives one
// framer per connection from that connection's read loop.
type Framer struct {
	// OnMessage receives each parsed request, in line order.
	OnMessage func(Request)

	// OnError receives lines that are not valid JSON. The line slice
	// is only valid for the duration of the call.
	OnError func(line []byte, err error)

	buffer []byte
}

// Feed appends a chunk to the framing buffer and delivers every
// complete newline-terminated line it now holds. Lines are trimmed of
// surrounding whitespace; empty lines are skipped. Leftover bytes
// after the last newline persist until the next Feed.
func (f *Framer) Feed(chunk []byte) {
	f.buffer = append(f.buffer, chunk...)
	for {
		newline := bytes.IndexByte(f.buffer, '\n')
		if newline < 0 {
			return
		}
		line := bytes.TrimSpace(f.buffer[:newline])
		f.buffer = f.buffer[newline+1:]
		if len(line) == 0 {
			continue
		}

		var request Request
		if err := json.Unmarshal(line, &request); err != nil {
			if f.OnError != nil {
				f.OnError(line, err)
			}
			continue
		}
		if f.OnMessage != nil {
			f.OnMessage(request)
		}
	}
}

// Encode serializes a message as one NDJSON line: the JSON encoding
// followed by a single newline. Newlines inside payload strings are
// escaped by the JSON encoder, so the result always contains exactly
// one newline, at the end.
func Encode(message any) ([]byte, error) {
	encoded, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", message, err)
	}
	return append(encoded, '\n'), nil
}
