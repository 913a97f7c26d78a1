package descriptions

import "sort"

// Tool names exposed over MCP
const (
	ToolGenerateXML   = "facturx_generate_xml"
	ToolEmbed         = "facturx_embed"
	ToolInspect       = "facturx_inspect"
	ToolExtractFields = "facturx_extract_fields"
	ToolServerInfo    = "facturx_server_info"
)

// Tool descriptions with practical examples and use cases

const (
	GenerateXMLDescription = `Generate the Factur-X CII XML (Cross Industry Invoice) for an invoice record without touching any PDF.

**When to use:** Before embedding, to preview the XML a profile produces and to see which business terms are missing or inconsistent.

**Why it's useful:** The record checks report missing mandatory terms (BT-1 invoice number, BT-2 issue date, BT-27 seller name, ...) and amount mismatches before a PDF is written.

**Examples:**
• Preview a BASIC WL invoice: "Generate the Factur-X XML for invoice INV-2024-001 with profile BASIC_WL"
• Check totals: "Does HT + TVA equal TTC for this record?"
• Compare profiles: "Show the EN16931 XML for the same record"

**Common workflows:**
1. Record Preparation: facturx_extract_fields → confirm fields → facturx_generate_xml → fix errors
2. Profile Choice: generate with MINIMUM → generate with EN16931 → pick the profile the buyer requires

**Best practices:** Amounts are decimal strings in EUR ("1000.00"), dates are YYYY-MM-DD. Fix every error before calling facturx_embed.`

	EmbedDescription = `Turn an ordinary PDF invoice into a Factur-X PDF/A-3 document.

**When to use:** Once the invoice record has been confirmed and facturx_generate_xml reports no errors.

**Why it's useful:** Appends an incremental update that embeds factur-x.xml as an associated file, adds the XMP metadata declaring the Factur-X profile and an sRGB output intent. The original file is never modified.

**Examples:**
• Default output: "Embed invoice-2024-001.pdf with this record" writes invoice-2024-001-facturx.pdf
• Explicit output: "Embed scans/inv.pdf as out/inv-fx.pdf using profile EN16931"

**Common workflows:**
1. Local Conversion: facturx_extract_fields → facturx_generate_xml → facturx_embed → facturx_inspect
2. Batch: facturx_server_info → embed each listed PDF → inspect each output

**Best practices:** Both paths must stay inside the configured directory. Encrypted PDFs are refused. The validation report in the response lists every PASS/FAIL check.`

	InspectDescription = `Inspect the Factur-X and PDF/A-3 structure of a PDF.

**When to use:** To verify the output of facturx_embed, or to check a Factur-X invoice received from a supplier.

**Why it's useful:** Reads the catalog with two independent parsers, decodes the XMP packet, lists every embedded file and returns the embedded CII XML with its business terms.

**Examples:**
• Verify output: "Inspect invoice-2024-001-facturx.pdf"
• Supplier invoice: "Which Factur-X profile does supplier-invoice.pdf declare?"
• Troubleshooting: "Why is this PDF not recognised as Factur-X?"

**Common workflows:**
1. Quality Control: facturx_embed → facturx_inspect → check errors is empty
2. Reception: facturx_inspect → read terms → book the invoice

**Best practices:** Check both facturx and pdfa3 in the response; warnings flag profile mismatches between the XMP and the XML.`

	ExtractFieldsDescription = `Suggest invoice fields from the text of a PDF.

**When to use:** To pre-fill an invoice record from an existing PDF invoice before generating the Factur-X XML.

**Why it's useful:** Recognises French invoice layouts: invoice number, dates, SIRET, VAT number, IBAN, BIC and the HT/TVA/TTC totals.

**Examples:**
• Pre-fill: "Suggest the invoice data of invoice-2024-001.pdf"
• Partial data: "Which fields could be read from supplier.pdf?"

**Common workflows:**
1. Record Preparation: facturx_extract_fields → user confirms each field → facturx_generate_xml

**Best practices:** Suggestions are never authoritative; always confirm them. Scanned PDFs (content_type "scanned_images") yield no suggestions.`

	ServerInfoDescription = `Get server information, supported profiles and the PDFs available to the tools.

**When to use:** At the start of a session to discover the configured directory, the default profile and the size limits.

**Why it's useful:** Lists the PDF files in the configured directory with sizes and dates, and explains the recommended workflow.

**Examples:**
• Discovery: "Which invoices can I convert?"
• Limits: "What is the maximum file size and default profile?"

**Best practices:** Call this first; the directory listing is cached for one minute.`
)

// ToolDescriptions maps tool names to their comprehensive descriptions
var ToolDescriptions = map[string]string{
	ToolGenerateXML:   GenerateXMLDescription,
	ToolEmbed:         EmbedDescription,
	ToolInspect:       InspectDescription,
	ToolExtractFields: ExtractFieldsDescription,
	ToolServerInfo:    ServerInfoDescription,
}

// GetToolDescription returns the comprehensive description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the available tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
