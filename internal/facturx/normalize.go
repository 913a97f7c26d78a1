package facturx

import (
	"regexp"
	"strings"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizeDate turns YYYY-MM-DD into the CII format 102 (YYYYMMDD).
// Other inputs are not validated: hyphens are dropped and the rest passes through.
func NormalizeDate(s string) string {
	if isoDate.MatchString(s) {
		return s[0:4] + s[5:7] + s[8:10]
	}
	return strings.ReplaceAll(s, "-", "")
}

// ExtractSIREN keeps the digits of a SIRET or SIREN and returns at most the first nine.
func ExtractSIREN(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	out := digits.String()
	if len(out) >= 9 {
		return out[:9]
	}
	return out
}

// NormalizeVAT prefixes a bare VAT number with FR; values that already carry a
// two-letter country prefix are returned unchanged.
func NormalizeVAT(s string) string {
	v := strings.TrimSpace(s)
	if v == "" {
		return ""
	}
	if hasCountryPrefix(v) {
		return v
	}
	return "FR" + v
}

func hasCountryPrefix(v string) bool {
	if len(v) < 2 {
		return false
	}
	return isASCIILetter(v[0]) && isASCIILetter(v[1])
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// splitAddress returns the first line of a free-text address and the rest joined by spaces.
func splitAddress(addr string) (line, rest string) {
	lines := strings.Split(strings.ReplaceAll(addr, "\r\n", "\n"), "\n")
	line = strings.TrimSpace(lines[0])
	var tail []string
	for _, l := range lines[1:] {
		if l = strings.TrimSpace(l); l != "" {
			tail = append(tail, l)
		}
	}
	return line, strings.Join(tail, " ")
}

var frenchPostcode = regexp.MustCompile(`^(\d{5})\s+(.+)$`)

// splitCity separates a leading French postcode from the city name.
func splitCity(s string) (postcode, city string) {
	if m := frenchPostcode.FindStringSubmatch(s); m != nil {
		return m[1], strings.TrimSpace(m[2])
	}
	return "", s
}
