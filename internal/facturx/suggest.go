package facturx

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Suggestion is a best-effort pre-fill of an InvoiceRecord from PDF text.
// Found lists the JSON names of the fields that were recognised.
type Suggestion struct {
	Record InvoiceRecord `json:"invoiceData"`
	Found  []string      `json:"found"`
}

var (
	reInvoiceNumber = regexp.MustCompile(`(?im)(?:facture|invoice)\s*(?:n[°o]|no|#)?\s*[:\-]?\s*([A-Z0-9][A-Z0-9\-_/]*)`)
	reDate          = regexp.MustCompile(`\b(\d{2}[./-]\d{2}[./-]\d{4}|\d{4}[./-]\d{2}[./-]\d{2})\b`)
	reSIRET         = regexp.MustCompile(`\b(\d{3} ?\d{3} ?\d{3} ?\d{5})\b`)
	reVAT           = regexp.MustCompile(`\b(FR ?[0-9A-Z]{2} ?\d{3} ?\d{3} ?\d{3})\b`)
	reIBAN          = regexp.MustCompile(`\b([A-Z]{2}\d{2}(?: ?[A-Z0-9]){10,30})\b`)
	reBIC           = regexp.MustCompile(`(?i)\b(?:bic|swift)\s*[:\-]?\s*([A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?)\b`)
	reTotalHT       = regexp.MustCompile(`(?i)(?:total|montant)\s*ht\s*[:\-]?\s*([0-9][0-9 ,.]*)`)
	reTotalVAT      = regexp.MustCompile(`(?i)(?:total|montant)\s*tva\s*[:\-]?\s*([0-9][0-9 ,.]*)`)
	reTotalTTC      = regexp.MustCompile(`(?i)(?:(?:total|montant)\s*ttc|net\s*a\s*payer)\s*[:\-]?\s*([0-9][0-9 ,.]*)`)
	reVATRate       = regexp.MustCompile(`(?i)tva\s*[:\-]?\s*([0-9]{1,2}(?:[.,][0-9]{1,2})?)\s*%`)
)

var suggestDateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "02-01-2006", "02.01.2006"}

var hundred = decimal.NewFromInt(100)

// foldAccents removes combining marks so "Net à payer" matches "net a payer".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// SuggestFields scans extracted PDF text for the usual French invoice markers.
// Nothing is invented: fields that are not recognised stay empty, except the
// VAT rate and TTC total which are derived when the other amounts are known.
func SuggestFields(text string) Suggestion {
	s := Suggestion{Found: []string{}}
	t := strings.ReplaceAll(foldAccents(text), "\u00a0", " ")
	found := func(name string) { s.Found = append(s.Found, name) }

	for _, m := range reInvoiceNumber.FindAllStringSubmatch(t, -1) {
		if strings.ContainsAny(m[1], "0123456789") {
			s.Record.InvoiceNumber = m[1]
			found("invoiceNumber")
			break
		}
	}
	if m := reDate.FindStringSubmatch(t); m != nil {
		if iso := toISODate(m[1]); iso != "" {
			s.Record.InvoiceDate = iso
			found("invoiceDate")
		}
	}
	if m := reSIRET.FindStringSubmatch(t); m != nil {
		s.Record.VendorSIRET = strings.ReplaceAll(m[1], " ", "")
		found("vendorSIRET")
	}
	if m := reVAT.FindStringSubmatch(t); m != nil {
		s.Record.VendorVAT = strings.ReplaceAll(m[1], " ", "")
		found("vendorVAT")
	}
	for _, m := range reIBAN.FindAllStringSubmatch(t, -1) {
		if iban := strings.ReplaceAll(m[1], " ", ""); len(iban) >= 15 {
			s.Record.IBAN = iban
			found("iban")
			break
		}
	}
	if m := reBIC.FindStringSubmatch(t); m != nil {
		s.Record.BIC = strings.ToUpper(m[1])
		found("bic")
	}

	ht, htOK := suggestAmount(reTotalHT, t)
	vat, vatOK := suggestAmount(reTotalVAT, t)
	ttc, ttcOK := suggestAmount(reTotalTTC, t)
	if htOK {
		s.Record.AmountHT = ht.StringFixed(2)
		found("amountHT")
	}
	if vatOK {
		s.Record.VATAmount = vat.StringFixed(2)
		found("vatAmount")
	}
	if !ttcOK && htOK && vatOK {
		ttc, ttcOK = ht.Add(vat), true
	}
	if ttcOK {
		s.Record.AmountTTC = ttc.StringFixed(2)
		found("amountTTC")
	}

	if rate, ok := suggestAmount(reVATRate, t); ok {
		s.Record.VATRate = rate.String()
		found("vatRate")
	} else if htOK && vatOK && ht.IsPositive() && vat.IsPositive() {
		s.Record.VATRate = vat.Div(ht).Mul(hundred).Round(2).String()
		found("vatRate")
	}

	return s
}

func suggestAmount(re *regexp.Regexp, text string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	return ParseAmount(strings.TrimRight(m[1], " .,"))
}

func toISODate(raw string) string {
	for _, layout := range suggestDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
