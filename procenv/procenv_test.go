// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package procenv

import (
	"reflect"
	"testing"
)

func TestSanitizeRemovesLoaderVariables(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"PATH":                 "/usr/bin",
		"HOME":                 "/home/agent",
		"LD_PRELOAD":           "/tmp/evil.so",
		"LD_LIBRARY_PATH":      "/tmp/lib",
		"LD_AUDIT":             "/tmp/audit.so",
		"DYLD_INSERT_LIBRARIES": "/tmp/evil.dylib",
		"MY_DYLD_THING":        "also stripped, DYLD_ anywhere in the key",
		"__XPC_DYLD_LIBRARY_PATH": "/tmp",
		"__XPC_LD_PRELOAD":     "/tmp/evil.so",
		"LD_SOMETHING_ELSE":    "kept, not on the exact deny list",
		"BUILD_Y":              "kept",
	}

	sanitized, removed := Sanitize(env, true)

	wantRemoved := []string{
		"DYLD_INSERT_LIBRARIES",
		"LD_AUDIT",
		"LD_LIBRARY_PATH",
		"LD_PRELOAD",
		"MY_DYLD_THING",
		"__XPC_DYLD_LIBRARY_PATH",
		"__XPC_LD_PRELOAD",
	}
	if !reflect.DeepEqual(removed, wantRemoved) {
		t.Errorf("removed = %v, want %v", removed, wantRemoved)
	}

	for _, key := range wantRemoved {
		if _, ok := sanitized[key]; ok {
			t.Errorf("key %q survived sanitization", key)
		}
	}
	for _, key := range []string{"PATH", "HOME", "LD_SOMETHING_ELSE", "BUILD_Y"} {
		if sanitized[key] != env[key] {
			t.Errorf("key %q = %q, want %q", key, sanitized[key], env[key])
		}
	}
}

func TestSanitizeDisabledIsIdentity(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"PATH":       "/usr/bin",
		"LD_PRELOAD": "/tmp/evil.so",
	}
	sanitized, removed := Sanitize(env, false)

	if len(removed) != 0 {
		t.Errorf("removed = %v, want empty", removed)
	}
	if !Equivalent(sanitized, env) {
		t.Errorf("sanitized = %v, want identical to input", sanitized)
	}

	// The copy must be independent of the input.
	sanitized["PATH"] = "/other"
	if env["PATH"] != "/usr/bin" {
		t.Error("Sanitize returned an aliased map")
	}
}

func TestMinimal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
		want map[string]string
	}{
		{
			name: "copies only allow-listed keys",
			env: map[string]string{
				"PATH":       "/usr/bin:/bin",
				"HOME":       "/home/agent",
				"SHELL":      "/bin/zsh",
				"TERM":       "xterm-256color",
				"AWS_SECRET": "hunter2",
				"LD_PRELOAD": "/tmp/evil.so",
			},
			want: map[string]string{
				"PATH":  "/usr/bin:/bin",
				"HOME":  "/home/agent",
				"SHELL": "/bin/zsh",
				"TERM":  "xterm-256color",
			},
		},
		{
			name: "injects fallback PATH when absent",
			env:  map[string]string{"HOME": "/home/agent"},
			want: map[string]string{"HOME": "/home/agent", "PATH": FallbackPath},
		},
		{
			name: "empty input yields fallback PATH only",
			env:  map[string]string{},
			want: map[string]string{"PATH": FallbackPath},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := Minimal(test.env)
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("Minimal() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestEquivalent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b map[string]string
		want bool
	}{
		{"both empty", map[string]string{}, map[string]string{}, true},
		{"same", map[string]string{"A": "1", "B": "2"}, map[string]string{"B": "2", "A": "1"}, true},
		{"different value", map[string]string{"A": "1"}, map[string]string{"A": "2"}, false},
		{"missing key", map[string]string{"A": "1"}, map[string]string{}, false},
		{"extra key", map[string]string{"A": "1"}, map[string]string{"A": "1", "B": "2"}, false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := Equivalent(test.a, test.b); got != test.want {
				t.Errorf("Equivalent(%v, %v) = %v, want %v", test.a, test.b, got, test.want)
			}
		})
	}
}

func TestMergeOverridesWin(t *testing.T) {
	t.Parallel()

	base := map[string]string{"PATH": "/usr/bin", "HOME": "/root"}
	overrides := map[string]string{"HOME": "/home/agent", "EXTRA": "1"}

	merged := Merge(base, overrides)

	want := map[string]string{"PATH": "/usr/bin", "HOME": "/home/agent", "EXTRA": "1"}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("Merge() = %v, want %v", merged, want)
	}
	if base["HOME"] != "/root" {
		t.Error("Merge modified its base input")
	}
}

func TestListConversions(t *testing.T) {
	t.Parallel()

	env := FromList([]string{"B=2", "A=1", "A=override", "MALFORMED", "=nokey", "C=with=equals"})
	want := map[string]string{"B": "2", "A": "override", "C": "with=equals"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("FromList() = %v, want %v", env, want)
	}

	list := ToList(map[string]string{"B": "2", "A": "1"})
	wantList := []string{"A=1", "B=2"}
	if !reflect.DeepEqual(list, wantList) {
		t.Errorf("ToList() = %v, want %v", list, wantList)
	}
}
