package domain

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Image roles in generation order. Content images are numbered from 1.
const (
	RoleFeatured = "featured"
	RoleHero     = "hero"
)

// ContentRole returns the role name of the n-th content image.
func ContentRole(n int) string {
	return fmt.Sprintf("content-%d", n)
}

// ImageRoles returns the ordered roles generated for an article with the
// given number of content images.
func ImageRoles(contentImages int) []string {
	roles := []string{RoleFeatured, RoleHero}
	for i := 1; i <= contentImages; i++ {
		roles = append(roles, ContentRole(i))
	}
	return roles
}

// CountWords counts whitespace-separated tokens that contain at least one
// letter or digit. Markdown markers such as "##" or "-" are not counted.
func CountWords(text string) int {
	n := 0
	for _, field := range strings.Fields(text) {
		if strings.IndexFunc(field, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			n++
		}
	}
	return n
}

// WithinTolerance reports whether actual is within ±tolerance (a fraction) of target.
// The bounds are inclusive.
func WithinTolerance(actual, target int, tolerance float64) bool {
	if target <= 0 {
		return actual >= 0
	}
	diff := math.Abs(float64(actual - target))
	return diff <= float64(target)*tolerance+1e-9
}

// broadeningTerms are appended to a topic when research is retried.
var broadeningTerms = []string{"overview", "latest news", "analysis"}

// BroadenQuery widens a research topic for the single research retry.
// Quoted phrases are unquoted and generic coverage terms are appended.
func BroadenQuery(topic string) string {
	t := strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "").Replace(topic))
	t = strings.Join(strings.Fields(t), " ")
	lower := strings.ToLower(t)
	for _, term := range broadeningTerms {
		if !strings.Contains(lower, term) {
			t += " " + term
		}
	}
	return t
}
