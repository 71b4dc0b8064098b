package transport

import "strings"

// NormalizeUUID converts a UUID string to the internal format (lowercase,
// no dashes). Handles both the dashed standard form and already-normalized
// input.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// NormalizeUUIDs normalizes a slice of UUID strings. Returns nil for nil
// input so "no filter" survives the round trip.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}
