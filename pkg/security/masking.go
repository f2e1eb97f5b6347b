// Package security provides masking helpers so bank account and contact
// details never appear in logs or stored metadata in the clear.
package security

import (
	"strings"
)

// MaskAccountNumber keeps the last four digits of a bank account number
func MaskAccountNumber(account string) string {
	if len(account) <= 4 {
		return strings.Repeat("*", len(account))
	}
	return strings.Repeat("*", len(account)-4) + account[len(account)-4:]
}

// MaskEmail masks the local part of an email address, keeping the first
// character and the full domain
func MaskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "***"
	}
	return parts[0][:1] + "***@" + parts[1]
}

// MaskAddress shortens a chain address to its first and last four hex chars
func MaskAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// MaskName keeps the first word of an account holder name
func MaskName(name string) string {
	fields := strings.Fields(name)
	if len(fields) <= 1 {
		return name
	}
	return fields[0] + " " + strings.Repeat("*", 3)
}
