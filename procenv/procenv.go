// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package procenv builds and filters process environments for spawned
// terminal sessions.
//
// The daemon runs programs on behalf of a supervisor that may itself be
// sandboxed. Dynamic-linker injection variables (LD_PRELOAD, DYLD_*,
// and the XPC-propagated variants) are a classic vector for smuggling
// code into a process spawned outside the sandbox, so Sanitize strips
// them from every environment handed to a child. Minimal produces the
// small allow-listed environment used for the one-shot spawn retry when
// a full environment turns out to be unusable.
package procenv

import (
	"sort"
	"strings"
)

// FallbackPath is injected as PATH when building a minimal environment
// from one that has no PATH at all.
const FallbackPath = "/usr/bin:/bin:/usr/sbin:/sbin"

// deniedExact are environment keys removed outright by Sanitize.
var deniedExact = map[string]bool{
	"LD_PRELOAD":      true,
	"LD_LIBRARY_PATH": true,
	"LD_AUDIT":        true,
}

// deniedPrefixes are key prefixes removed by Sanitize. These cover the
// variables macOS XPC services use to re-inject loader settings into
// their children.
var deniedPrefixes = []string{"__XPC_DYLD_", "__XPC_LD_"}

// minimalAllowed is the allow-list used by Minimal.
var minimalAllowed = []string{
	"PATH", "HOME", "SHELL", "USER", "LOGNAME",
	"LANG", "LC_ALL", "TERM", "COLORTERM", "TMPDIR",
}

// Sanitize returns a copy of env with loader injection variables
// removed, along with the sorted list of removed keys for diagnostics.
// When enabled is false it returns an unmodified copy and an empty
// removed list.
func Sanitize(env map[string]string, enabled bool) (map[string]string, []string) {
	sanitized := make(map[string]string, len(env))
	var removed []string
	for key, value := range env {
		if enabled && denied(key) {
			removed = append(removed, key)
			continue
		}
		sanitized[key] = value
	}
	sort.Strings(removed)
	return sanitized, removed
}

// denied reports whether a key matches the loader-variable deny list.
func denied(key string) bool {
	if deniedExact[key] {
		return true
	}
	if strings.Contains(key, "DYLD_") {
		return true
	}
	for _, prefix := range deniedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Minimal returns the allow-listed subset of env: enough for an
// interactive program to find binaries, its home directory, and a
// usable terminal definition, and nothing else. When env carries no
// PATH, FallbackPath is injected so the retry can still resolve the
// target binary.
func Minimal(env map[string]string) map[string]string {
	minimal := make(map[string]string, len(minimalAllowed))
	for _, key := range minimalAllowed {
		if value, ok := env[key]; ok {
			minimal[key] = value
		}
	}
	if _, ok := minimal["PATH"]; !ok {
		minimal["PATH"] = FallbackPath
	}
	return minimal
}

// Equivalent reports whether two environments have the same key set
// with the same values.
func Equivalent(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		other, ok := b[key]
		if !ok || other != value {
			return false
		}
	}
	return true
}

// Merge copies base and applies overrides on top. Neither input is
// modified.
func Merge(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	return merged
}

// FromList converts os.Environ() form ("KEY=value" strings) to a map.
// Entries without '=' are ignored; later duplicates win, matching how
// execve resolves them on Linux.
func FromList(list []string) map[string]string {
	env := make(map[string]string, len(list))
	for _, entry := range list {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// ToList converts a map to os.Environ() form, sorted by key so the
// child's environment block is deterministic.
func ToList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for key, value := range env {
		list = append(list, key+"="+value)
	}
	sort.Strings(list)
	return list
}
