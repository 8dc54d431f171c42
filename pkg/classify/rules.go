package classify

import (
	"regexp"
	"strings"
)

// The keyword matchers run in declaration order; the first hit wins, so
// a message that is both a greeting and a question stays a greeting.
var matchers = []matcher{
	{
		name:       "greeting",
		label:      LabelGreeting,
		confidence: 0.9,
		match: func(_, lowered string) bool {
			return greetingRe.MatchString(lowered)
		},
	},
	{
		name:       "farewell",
		label:      LabelFarewell,
		confidence: 0.9,
		match: func(_, lowered string) bool {
			return farewellRe.MatchString(lowered)
		},
	},
	{
		name:       "help",
		label:      LabelHelpRequest,
		confidence: 0.85,
		match: func(_, lowered string) bool {
			return helpRe.MatchString(lowered)
		},
	},
	{
		name:         "name_declaration",
		label:        LabelContextResponse,
		confidence:   0.95,
		extractsName: true,
		match: func(original, _ string) bool {
			return extractName(original) != ""
		},
	},
	{
		name:       "question",
		label:      LabelQuestion,
		confidence: 0.7,
		match: func(original, lowered string) bool {
			return strings.HasSuffix(original, "?") ||
				strings.Contains(original, "¿") ||
				questionRe.MatchString(lowered)
		},
	},
}

type matcher struct {
	name         string
	label        Label
	confidence   float64
	extractsName bool
	match        func(original, lowered string) bool
}

var (
	greetingRe = regexp.MustCompile(`\b(hola|buenas|buenos d[ií]as|buenas tardes|buenas noches|saludos|qu[eé] tal|hello|hi|hey|howdy)\b`)
	farewellRe = regexp.MustCompile(`\b(adi[oó]s|chao|chau|hasta luego|hasta pronto|hasta ma[ñn]ana|nos vemos|bye|goodbye|see you|good night)\b`)
	helpRe     = regexp.MustCompile(`\b(ayuda|ay[uú]dame|ay[uú]denme|socorro|help)\b`)
	// \b is ASCII-only in Go regexp, so words ending in an accented
	// vowel need an explicit space-or-end boundary.
	questionRe = regexp.MustCompile(`^(qu[eé]|qui[eé]n|c[oó]mo|cu[aá]ndo|d[oó]nde|por qu[eé]|cu[aá]l|cu[aá]nto|what|who|how|when|where|why|which|can|could|do|does|is|are)(\s|$)`)
)

// Name declarations, Spanish first. Anchored so "dime como te llamas"
// does not extract.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^me llamo\s+(.+)$`),
	regexp.MustCompile(`(?i)^mi nombre es\s+(.+)$`),
	regexp.MustCompile(`(?i)^ll[aá]mame\s+(.+)$`),
	regexp.MustCompile(`(?i)^soy\s+(.+)$`),
	regexp.MustCompile(`(?i)^my name is\s+(.+)$`),
	regexp.MustCompile(`(?i)^call me\s+(.+)$`),
	regexp.MustCompile(`(?i)^i['’]?m\s+(.+)$`),
}

// extractName returns the declared name, or "" when the text is not a
// name declaration. The candidate is cleaned up, not validated; the
// registration step owns validation.
func extractName(text string) string {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.Trim(m[1], " .,!?;:¡¿\"'")
		candidate = strings.Join(strings.Fields(candidate), " ")
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
