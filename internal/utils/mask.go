package utils

import "strings"

// MaskAPIKey hides a credential for display. Keys of eight characters or
// fewer are fully masked; longer ones keep the first and last four.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
