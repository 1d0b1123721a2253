package slug

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxLen = 48

var reSlug = regexp.MustCompile(`^[a-z0-9-]{2,48}$`)

// IsSlug reports whether s matches ^[a-z0-9-]{2,48}$.
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify lowercases s, maps runs of anything outside [a-z0-9] to a single '-',
// trims dashes at both ends and caps the result at 48 characters.
func Slugify(s string) string {
	out := make([]rune, 0, len(s))
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			out = append(out, r)
			dash = false
		} else if !dash && len(out) > 0 {
			out = append(out, '-')
			dash = true
		}
		if len(out) >= maxLen {
			break
		}
	}
	return strings.Trim(string(out), "-")
}

// ForTrip derives a trip slug from its name, suffixed with the first id block so
// trips with the same name stay distinguishable.
func ForTrip(name string, id uuid.UUID) string {
	suffix := strings.SplitN(id.String(), "-", 2)[0]
	base := Slugify(name)
	if len(base) > maxLen-len(suffix)-1 {
		base = strings.TrimRight(base[:maxLen-len(suffix)-1], "-")
	}
	if base == "" {
		return "trip-" + suffix
	}
	return base + "-" + suffix
}
