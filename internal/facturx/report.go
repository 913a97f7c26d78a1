package facturx

import (
	"fmt"
	"strings"
	"time"
)

// ReportInput is everything the validation report mentions.
type ReportInput struct {
	Record      InvoiceRecord
	Profile     Profile
	Validation  Validation
	Path        string
	GeneratedAt time.Time
}

// Report is a rendered validation report: a title and ordered lines.
type Report struct {
	Title string
	Lines []ReportLine
}

// ReportLine is one line of the report. Status is empty for plain text.
type ReportLine struct {
	Status string
	Text   string
}

// Report line statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusWarn = "WARN"
)

// BuildReport assembles the validation report. A check is only marked PASS
// when the corresponding step actually completed.
func BuildReport(in ReportInput) Report {
	ts := in.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	r := Report{Title: "Factur-X Validation Report"}
	plain := func(format string, args ...any) {
		r.Lines = append(r.Lines, ReportLine{Text: fmt.Sprintf(format, args...)})
	}
	check := func(ok bool, text string) {
		status := StatusFail
		if ok {
			status = StatusPass
		}
		r.Lines = append(r.Lines, ReportLine{Status: status, Text: text})
	}

	plain("Generated: %s", ts.UTC().Format(time.RFC3339))
	plain("Invoice: %s", in.Record.InvoiceNumber)
	plain("Vendor: %s", in.Record.VendorName)
	plain("Client: %s", in.Record.ClientName)
	plain("Profile: %s", in.Profile.ConformanceLevel())
	if in.Path != "" {
		plain("Conversion: %s", in.Path)
	}

	check(in.Validation.PDFA3Valid, "PDF/A-3 container")
	check(in.Validation.XMLValid, "CII XML structure")
	check(in.Validation.FacturXValid, "Factur-X metadata embedded")

	for _, e := range in.Validation.Errors {
		r.Lines = append(r.Lines, ReportLine{Status: StatusFail, Text: e})
	}
	for _, w := range in.Validation.Warnings {
		r.Lines = append(r.Lines, ReportLine{Status: StatusWarn, Text: w})
	}

	plain("Total amount: %s %s", in.Record.AmountTTC, Currency)
	return r
}

// String renders the report as plain text.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString("\n")
	for _, l := range r.Lines {
		if l.Status != "" {
			fmt.Fprintf(&b, "[%s] %s\n", l.Status, l.Text)
			continue
		}
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	return b.String()
}
