package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf/pdfa"
)

// facturXCatalogKeys must all be present in the catalog of a Factur-X PDF
var facturXCatalogKeys = []string{"Metadata", "Names", "OutputIntents", "AF"}

// Inspector reports the Factur-X structure of a PDF. The catalog is read
// twice, once with pdfcpu and once with the in-house object model, so a
// document only passes when both agree.
type Inspector struct{}

// NewInspector creates a new inspector
func NewInspector() *Inspector {
	return &Inspector{}
}

// Inspect reads data and reports its PDF/A-3 and Factur-X properties.
// Structural problems end up in Errors; only unreadable input fails.
func (i *Inspector) Inspect(data []byte) (*Inspection, error) {
	structure, err := pdfa.ReadStructure(data)
	if err != nil {
		return nil, err
	}

	result := &Inspection{
		Size:          int64(len(data)),
		Version:       structure.Header,
		Encrypted:     structure.Encrypted,
		Revisions:     structure.Revisions,
		HasXMP:        structure.HasMetadata,
		OutputIntents: structure.OutputIntents,
		Attachments:   structure.EmbeddedFiles,
		Warnings:      structure.Warnings,
	}

	pages, catalogOK := i.readWithPDFCPU(data, result)
	result.Pages = pages

	if structure.Encrypted {
		result.Errors = append(result.Errors, "document is encrypted")
		return result, nil
	}

	var declared facturx.Profile
	if structure.HasMetadata {
		info, err := facturx.ReadXMP(structure.Metadata)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.XMP = &info
			declared, _ = info.Profile()
		}
	} else {
		result.Errors = append(result.Errors, "catalog has no XMP metadata")
	}

	result.PDFA3 = catalogOK && result.XMP != nil && result.XMP.PDFAPart == "3" && hasIntent(result.OutputIntents)
	if !hasIntent(result.OutputIntents) {
		result.Errors = append(result.Errors, "no "+pdfa.OutputIntentSubtype+" output intent")
	}

	file, ok := structure.FacturX()
	if !ok {
		result.Errors = append(result.Errors, "no embedded "+facturx.AttachmentName)
		return result, nil
	}
	result.XML = string(file.Data)
	if !file.AssociatedFile {
		result.Warnings = append(result.Warnings, facturx.AttachmentName+" is not listed in /AF")
	}

	terms, profile, err := facturx.ParseCII(file.Data)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", facturx.AttachmentName, err))
		return result, nil
	}
	result.Terms = terms.Map()
	result.Profile = profile.String()

	if declared != "" && declared != profile {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"XMP declares %s but the XML guideline is %s", declared.ConformanceLevel(), profile.ConformanceLevel()))
	}

	result.FacturX = result.XMP != nil && result.XMP.DocumentFileName == facturx.AttachmentName && catalogOK
	return result, nil
}

// readWithPDFCPU opens data with pdfcpu in relaxed mode and checks the
// catalog carries the Factur-X entries.
func (i *Inspector) readWithPDFCPU(data []byte, result *Inspection) (int, bool) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("pdfcpu: failed to read PDF context: %v", err))
		return 0, false
	}

	pages := 0
	if err := ctx.EnsurePageCount(); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("pdfcpu: failed to count pages: %v", err))
	} else {
		pages = ctx.PageCount
	}

	root, err := ctx.Catalog()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("pdfcpu: %v", err))
		return pages, false
	}

	ok := true
	for _, key := range facturXCatalogKeys {
		if _, found := root.Find(key); !found {
			result.Errors = append(result.Errors, "catalog has no /"+key)
			ok = false
		}
	}
	return pages, ok
}

func hasIntent(intents []string) bool {
	for _, s := range intents {
		if s == pdfa.OutputIntentSubtype {
			return true
		}
	}
	return false
}
