package workflows

// DeduplicateStrings returns the non-empty values of s in first-seen order.
// The input slice is not modified. Order is preserved so that replays build
// identical activity inputs.
func DeduplicateStrings(s []string) []string {
	out := make([]string, 0, len(s))
	seen := make(map[string]struct{}, len(s))
	for _, v := range s {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
