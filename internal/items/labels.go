package items

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/antarctica/lantern/internal/records"
)

var titleCaser = cases.Title(language.BritishEnglish)

// HierarchyLabel renders a hierarchy level code as a presentation label,
// splitting camelCase words: paperMapProduct becomes "Paper Map Product".
func HierarchyLabel(level records.HierarchyLevel) string {
	var words []string
	var word strings.Builder
	for _, r := range string(level) {
		if unicode.IsUpper(r) && word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
		word.WriteRune(r)
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	return titleCaser.String(strings.Join(words, " "))
}
