package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases, trims, collapses whitespace and strips diacritics so
// "¡Buenos Días!" and "buenos dias" classify the same way.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// greetingPattern runs against normalized text. The trailing word boundary
// keeps "hidratacion" from matching "hi".
var greetingPattern = regexp.MustCompile(`^[¡!¿]*(hola|hello|hi|hey|buenas|buen[oa]s?\s?(dia|dias|tarde|tardes|noche|noches)|que tal|saludos|como estas|que onda)\b`)

// IsGreeting reports whether normalized text opens with a greeting.
func IsGreeting(normalized string) bool {
	return greetingPattern.MatchString(normalized)
}

// keywords are checked in order; the first one contained in the text wins.
var keywords = []string{"diagnostico", "cita", "ubicacion", "productos", "menu"}

// DetectKeyword returns the first keyword, in table order, contained in normalized text.
func DetectKeyword(normalized string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(normalized, kw) {
			return kw, true
		}
	}
	return "", false
}
