package auth

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeOrgName canonicalizes a tenant name: Unicode compatibility
// normalization, collapsed internal whitespace, trimmed ends. Two names that
// normalize equal refer to the same organization.
func NormalizeOrgName(name string) string {
	name = norm.NFKC.String(name)
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeEmail lowercases and normalizes an email address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}
