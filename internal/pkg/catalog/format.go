package catalog

import (
	"fmt"
	"strings"
)

// FormatDataAmount renders a bundle's data allowance for display.
// Unlimited bundles render as "Unlimited"; a missing or non-positive
// allowance renders as "Unknown". Values of 1GB and up collapse to a GB
// figure with one decimal place, with a trailing ".0" stripped.
func FormatDataAmount(megabytes *int64, unlimited bool) string {
	if unlimited {
		return "Unlimited"
	}
	if megabytes == nil || *megabytes <= 0 {
		return "Unknown"
	}
	mb := *megabytes
	if mb < 1024 {
		return fmt.Sprintf("%dMB", mb)
	}
	gb := float64(mb) / 1024
	s := fmt.Sprintf("%.1f", gb)
	s = strings.TrimSuffix(s, ".0")
	return s + "GB"
}
