package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewID mints an opaque identifier with a readable prefix, e.g. "spec_ab12…".
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw[:20]
}

// NewSignature mints an opaque record signature.
func NewSignature() string {
	return "sig_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AppendUnique appends items to dst, skipping blanks and entries already
// present, preserving insertion order.
func AppendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(items))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

// CloneList returns a copy so stored records stay immutable.
func CloneList(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
