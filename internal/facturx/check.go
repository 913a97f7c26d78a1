package facturx

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// coherenceTolerance is the accepted gap between HT + VAT and TTC.
var coherenceTolerance = decimal.RequireFromString("0.05")

var acceptedDateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

// Findings holds the outcome of Check.
type Findings struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether no errors were found.
func (f Findings) OK() bool {
	return len(f.Errors) == 0
}

func (f *Findings) errorf(format string, args ...any) {
	f.Errors = append(f.Errors, fmt.Sprintf(format, args...))
}

func (f *Findings) warnf(format string, args ...any) {
	f.Warnings = append(f.Warnings, fmt.Sprintf(format, args...))
}

// Check runs the business checks on a record before conversion: identity
// fields present, amounts numeric and coherent, IBAN plausible.
func Check(rec InvoiceRecord) Findings {
	f := Findings{Errors: []string{}, Warnings: []string{}}

	if strings.TrimSpace(rec.InvoiceNumber) == "" {
		f.errorf("invoice number is missing")
	}
	switch d := strings.TrimSpace(rec.InvoiceDate); {
	case d == "":
		f.errorf("invoice date is missing")
	case !plausibleDate(d):
		f.errorf("invoice date %q is invalid (expected YYYY-MM-DD or DD/MM/YYYY)", d)
	}
	if strings.TrimSpace(rec.VendorName) == "" {
		f.errorf("vendor name is missing")
	}
	if strings.TrimSpace(rec.ClientName) == "" {
		f.errorf("client name is missing")
	}

	ht, htOK := ParseAmount(rec.AmountHT)
	vat, vatOK := ParseAmount(rec.VATAmount)
	ttc, ttcOK := ParseAmount(rec.AmountTTC)
	if !htOK {
		f.errorf("amount excluding tax must be a number")
	}
	if !vatOK {
		f.errorf("VAT amount must be a number")
	}
	if !ttcOK {
		f.errorf("amount including tax must be a number")
	}
	if _, ok := ParseAmount(rec.VATRate); !ok {
		f.errorf("VAT rate is missing or invalid")
	}

	if htOK && vatOK && ttcOK {
		expected := ht.Add(vat)
		if expected.Sub(ttc).Abs().GreaterThan(coherenceTolerance) {
			f.errorf("totals are inconsistent: amount including tax (%s) differs from HT + VAT (%s)",
				ttc.String(), expected.String())
		}
	}

	if iban := strings.TrimSpace(rec.IBAN); iban != "" && len(iban) < 12 {
		f.warnf("IBAN looks too short")
	}
	if strings.TrimSpace(rec.VendorVAT) == "" {
		f.warnf("vendor VAT identifier is empty")
	}

	return f
}

// ParseAmount reads a decimal amount written with either separator and optional
// spaces, such as "1 234,56".
func ParseAmount(s string) (decimal.Decimal, bool) {
	clean := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(s))
	if clean == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func plausibleDate(s string) bool {
	for _, layout := range acceptedDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
