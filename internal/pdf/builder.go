package pdf

import (
	"fmt"
	"time"

	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf/pdfa"
)

// Builder embeds Factur-X data into PDFs locally and checks the result
type Builder struct {
	producer  string
	inspector *Inspector
}

// NewBuilder creates a builder that writes producer into the XMP packet
func NewBuilder(producer string) *Builder {
	if producer == "" {
		producer = facturx.DefaultProducer
	}
	return &Builder{
		producer:  producer,
		inspector: NewInspector(),
	}
}

// Producer returns the producer string written into metadata
func (b *Builder) Producer() string {
	return b.producer
}

// Embedded is the outcome of a local assembly
type Embedded struct {
	PDF        []byte
	XMP        []byte
	Inspection *Inspection
}

// Embed renders the XMP packet, assembles the PDF/A-3 structure around xml
// and reads the result back.
func (b *Builder) Embed(original, xml []byte, rec facturx.InvoiceRecord, profile facturx.Profile, now time.Time) (*Embedded, error) {
	if now.IsZero() {
		now = time.Now()
	}

	xmp, err := facturx.RenderXMP(facturx.XMPInput{
		Profile:       profile,
		InvoiceNumber: rec.InvoiceNumber,
		VendorName:    rec.VendorName,
		Producer:      b.producer,
		Timestamp:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render XMP: %w", err)
	}

	out, err := pdfa.Assemble(original, pdfa.Attachment{
		XML:           xml,
		XMP:           xmp,
		InvoiceNumber: rec.InvoiceNumber,
		Profile:       profile,
		ModTime:       now,
	})
	if err != nil {
		return nil, err
	}

	inspection, err := b.inspector.Inspect(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read back assembled PDF: %w", err)
	}

	return &Embedded{PDF: out, XMP: xmp, Inspection: inspection}, nil
}

// Validate folds record findings and a readback inspection into a
// Validation. inspection may be nil when no PDF was produced locally.
func Validate(findings facturx.Findings, xmlGenerated bool, inspection *Inspection) facturx.Validation {
	v := facturx.Validation{
		XMLValid: xmlGenerated && findings.OK(),
		Errors:   append([]string{}, findings.Errors...),
		Warnings: append([]string{}, findings.Warnings...),
	}
	if inspection != nil {
		v.PDFA3Valid = inspection.PDFA3
		v.FacturXValid = inspection.FacturX
		v.Errors = append(v.Errors, inspection.Errors...)
		v.Warnings = append(v.Warnings, inspection.Warnings...)
	}
	return v
}
