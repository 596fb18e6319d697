package extraction

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// Canonicalize normalizes an entity name to its canonical form: lowercased,
// whitespace collapsed, spaces replaced with underscores.
//
// "Sarah Johnson", "sarah  johnson" and " SARAH JOHNSON " all canonicalize
// to "sarah_johnson", so mentions of the same entity converge on one node.
func Canonicalize(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(name)), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, "_")
}

// EntityID derives the deterministic entity identifier from the owner scope
// and the canonical name. The same (owner, name) pair always yields the same
// ID, which is what makes entity upserts idempotent.
func EntityID(ownerID, canonicalName string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ownerID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(canonicalName))
	return fmt.Sprintf("ent_%016x", h.Sum64())
}

// NormalizeType maps an extracted type string onto the known entity type
// set, falling back to "other".
func NormalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "person":
		return "person"
	case "project":
		return "project"
	case "technology":
		return "technology"
	case "organization":
		return "organization"
	default:
		return "other"
	}
}
