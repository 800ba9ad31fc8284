// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestFramerChunkingIndependence(t *testing.T) {
	t.Parallel()

	lines := []string{
		`{"op":"hello","token":"secret"}`,
		`{"op":"spawn","id":"1","cmd":"echo","args":["hi"]}`,
		`{"op":"write","session":"s1","data_b64":"cGluZwo="}`,
		`{"op":"resize","session":"s1","cols":120,"rows":40}`,
		`{"op":"close","session":"s1"}`,
	}
	stream := []byte(strings.Join(lines, "\n") + "\n")

	chunkSizes := []int{1, 2, 3, 7, 16, len(stream)}
	for _, chunkSize := range chunkSizes {
		var got []Request
		framer := &Framer{
			OnMessage: func(request Request) { got = append(got, request) },
			OnError: func(line []byte, err error) {
				t.Errorf("chunk size %d: unexpected parse error for %q: %v", chunkSize, line, err)
			},
		}

		for offset := 0; offset < len(stream); offset += chunkSize {
			end := offset + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			framer.Feed(stream[offset:end])
		}

		if len(got) != len(lines) {
			t.Fatalf("chunk size %d: got %d messages, want %d", chunkSize, len(got), len(lines))
		}
		wantOps := []string{"hello", "spawn", "write", "resize", "close"}
		for i, request := range got {
			if request.Op != wantOps[i] {
				t.Errorf("chunk size %d: message %d op = %q, want %q", chunkSize, i, request.Op, wantOps[i])
			}
		}
	}
}

func TestFramerMalformedLine(t *testing.T) {
	t.Parallel()

	var messages []Request
	var parseErrors int
	framer := &Framer{
		OnMessage: func(request Request) { messages = append(messages, request) },
		OnError:   func(line []byte, err error) { parseErrors++ },
	}

	framer.Feed([]byte(`{"op":"hello"}` + "\n" + `this is not json` + "\n" + `{"op":"close","session":"s1"}` + "\n"))

	if parseErrors != 1 {
		t.Errorf("parse errors = %d, want 1", parseErrors)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Op != "hello" || messages[1].Op != "close" {
		t.Errorf("ops = %q, %q; want hello, close", messages[0].Op, messages[1].Op)
	}
}

func TestFramerSkipsBlankLines(t *testing.T) {
	t.Parallel()

	var messages []Request
	framer := &Framer{
		OnMessage: func(request Request) { messages = append(messages, request) },
		OnError:   func(line []byte, err error) { t.Errorf("unexpected error: %v", err) },
	}

	framer.Feed([]byte("\n  \n\r\n{\"op\":\"hello\"}\r\n\n"))

	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
}

func TestFramerLeftoverPersists(t *testing.T) {
	t.Parallel()

	var messages []Request
	framer := &Framer{OnMessage: func(request Request) { messages = append(messages, request) }}

	framer.Feed([]byte(`{"op":"sig`))
	if len(messages) != 0 {
		t.Fatalf("partial line delivered early: %d messages", len(messages))
	}
	framer.Feed([]byte(`nal","session":"s1","signal":"SIGINT"}` + "\n"))
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0].Signal != "SIGINT" {
		t.Errorf("signal = %q, want SIGINT", messages[0].Signal)
	}
}

func TestEncodeAppendsSingleNewline(t *testing.T) {
	t.Parallel()

	encoded, err := Encode(NewData("s1", "bGluZTFcbmxpbmUy"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasSuffix(encoded, []byte("\n")) {
		t.Errorf("encoded message does not end with newline: %q", encoded)
	}
	if bytes.Count(encoded, []byte("\n")) != 1 {
		t.Errorf("encoded message contains %d newlines, want 1: %q", bytes.Count(encoded, []byte("\n")), encoded)
	}
}

func TestEncodeEscapesPayloadNewlines(t *testing.T) {
	t.Parallel()

	// Raw text payloads may contain newlines; the JSON string escaping
	// must keep the message on one line.
	encoded, err := Encode(ErrorMessage{Op: OpError, Code: CodeSpawnFailed, Message: "first\nsecond"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Count(encoded, []byte("\n")) != 1 {
		t.Fatalf("payload newline leaked into framing: %q", encoded)
	}

	var decoded ErrorMessage
	if err := json.Unmarshal(bytes.TrimSuffix(encoded, []byte("\n")), &decoded); err != nil {
		t.Fatalf("decoding round trip: %v", err)
	}
	if decoded.Message != "first\nsecond" {
		t.Errorf("message = %q, want %q", decoded.Message, "first\nsecond")
	}
}

func TestExitSerializesExplicitNulls(t *testing.T) {
	t.Parallel()

	code := 0
	encoded, err := json.Marshal(NewExit("s1", &code, nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"op":"exit","session":"s1","code":0,"signal":null}`
	if string(encoded) != want {
		t.Errorf("exit encoding = %s, want %s", encoded, want)
	}

	signal := "SIGTERM"
	encoded, err = json.Marshal(NewExit("s1", nil, &signal))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want = `{"op":"exit","session":"s1","code":null,"signal":"SIGTERM"}`
	if string(encoded) != want {
		t.Errorf("exit encoding = %s, want %s", encoded, want)
	}
}
