package facturx

// InvoiceRecord is the flat invoice data confirmed by the user.
// All values are kept as entered; amounts are decimal strings in EUR.
type InvoiceRecord struct {
	VendorName    string `json:"vendorName"`
	VendorSIRET   string `json:"vendorSIRET"`
	VendorVAT     string `json:"vendorVAT"`
	VendorAddress string `json:"vendorAddress"`

	ClientName    string `json:"clientName"`
	ClientSIREN   string `json:"clientSIREN"`
	ClientAddress string `json:"clientAddress"`

	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	DueDate       string `json:"dueDate"`

	AmountHT  string `json:"amountHT"`
	VATRate   string `json:"vatRate"`
	VATAmount string `json:"vatAmount"`
	AmountTTC string `json:"amountTTC"`

	IBAN         string `json:"iban"`
	BIC          string `json:"bic"`
	PaymentTerms string `json:"paymentTerms"`

	DeliveryAddress string `json:"deliveryAddress,omitempty"`
}

// Currency is the only invoice currency the assembler emits.
const Currency = "EUR"

// DocumentTypeInvoice is the UNTDID 1001 code for a commercial invoice.
const DocumentTypeInvoice = "380"

// AttachmentName is the file name Factur-X readers look for.
const AttachmentName = "factur-x.xml"

// Validation summarises the checks run for one conversion.
type Validation struct {
	PDFA3Valid   bool     `json:"pdfA3Valid"`
	XMLValid     bool     `json:"xmlValid"`
	FacturXValid bool     `json:"facturXValid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
}

// Artifact is everything produced for one conversion.
type Artifact struct {
	PDF        []byte
	XML        []byte
	XMP        []byte
	Report     Report
	ReportPDF  []byte
	Validation Validation
	Profile    Profile
}
