// Package labels holds helpers shared by the label-detection adapters.
package labels

import "strings"

// Collect trims names, drops empty ones and keeps at most limit of them in
// the service's order.
func Collect(names []string, limit int) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}
