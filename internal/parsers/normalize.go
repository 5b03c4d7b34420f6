package parsers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	headerReplacer = strings.NewReplacer(
		" ", "_",
		"º", "o",
		"ª", "a",
		"<", "menor_que",
		"¹", "1",
		"²", "2",
		"³", "3",
	)
	underscoreRun = regexp.MustCompile(`_+`)
)

// stripAccents removes combining marks after canonical decomposition
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// NormalizeHeader turns a column header into its snake-case ASCII key:
// "Km Inicial" → "km_inicial", "Tipo de Combustível" → "tipo_de_combustivel",
// "Nº" → "no", "m³" → "m3".
func NormalizeHeader(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	s = headerReplacer.Replace(s)
	s = stripAccents(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(r)
		}
	}

	return underscoreRun.ReplaceAllString(b.String(), "_")
}

// NormalizeVehicle keeps only the letters and digits of a plate: "ABC-1234" → "ABC1234"
func NormalizeVehicle(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range plate {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
