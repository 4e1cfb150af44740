// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

// CloneMap deep-copies a configuration or variable mapping. Nested maps and
// slices are copied; scalar values are shared. A nil input yields an empty map.
func CloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the container types produced by JSON decoding and by
// the expression evaluator.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// MergeConfig returns defaults overlaid with overrides. Neither input is modified.
func MergeConfig(defaults, overrides map[string]any) map[string]any {
	out := CloneMap(defaults)
	for k, v := range overrides {
		out[k] = CloneValue(v)
	}
	return out
}
