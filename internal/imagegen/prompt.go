package imagegen

import (
	"fmt"
	"strings"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// Prompt builds the generation prompt for one image role. It is pure so the
// workflow can call it directly.
func Prompt(title, angle, style, role string) string {
	var b strings.Builder
	switch {
	case role == domain.RoleFeatured:
		fmt.Fprintf(&b, "Featured illustration for the article %q.", title)
	case role == domain.RoleHero:
		fmt.Fprintf(&b, "Wide hero banner for the article %q.", title)
	case strings.HasPrefix(role, "content-"):
		fmt.Fprintf(&b, "In-article illustration %s for %q.", strings.TrimPrefix(role, "content-"), title)
	default:
		fmt.Fprintf(&b, "Illustration for the article %q.", title)
	}
	if angle != "" {
		fmt.Fprintf(&b, " The story: %s.", strings.TrimRight(angle, "."))
	}
	if style != "" {
		fmt.Fprintf(&b, " Style: %s.", strings.TrimRight(style, "."))
	}
	b.WriteString(" No text, captions or logos in the image.")
	return b.String()
}

// AltText describes an image for screen readers.
func AltText(title, role string) string {
	switch {
	case role == domain.RoleFeatured:
		return "Featured image: " + title
	case role == domain.RoleHero:
		return "Hero image: " + title
	default:
		return "Illustration for " + title
	}
}
