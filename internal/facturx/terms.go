package facturx

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TermKey identifies an EN 16931 business term.
type TermKey string

const (
	TermInvoiceNumber  TermKey = "BT-1"
	TermIssueDate      TermKey = "BT-2"
	TermTaxPointDate   TermKey = "BT-7"
	TermDueDate        TermKey = "BT-9"
	TermPaymentTerms   TermKey = "BT-20"
	TermSellerName     TermKey = "BT-27"
	TermSellerLegalID  TermKey = "BT-30"
	TermSellerVAT      TermKey = "BT-31"
	TermSellerLine     TermKey = "BT-35"
	TermSellerCity     TermKey = "BT-37"
	TermSellerPostcode TermKey = "BT-38"
	TermBuyerName      TermKey = "BT-44"
	TermBuyerLegalID   TermKey = "BT-47"
	TermBuyerLine      TermKey = "BT-50"
	TermBuyerCity      TermKey = "BT-52"
	TermBuyerPostcode  TermKey = "BT-53"
	TermDeliveryLine   TermKey = "BT-75"
	TermRemittance     TermKey = "BT-83"
	TermPayeeIBAN      TermKey = "BT-84"
	TermPayeeBIC       TermKey = "BT-86"
	TermLineTotal      TermKey = "BT-106"
	TermTaxBasisTotal  TermKey = "BT-109"
	TermTaxTotal       TermKey = "BT-110"
	TermGrandTotal     TermKey = "BT-112"
	TermDuePayable     TermKey = "BT-115"
	TermVATBasis       TermKey = "BT-116"
	TermVATAmount      TermKey = "BT-117"
	TermVATCategory    TermKey = "BT-118"
	TermVATRate        TermKey = "BT-119"
)

var termNames = map[TermKey]string{
	TermInvoiceNumber:  "invoice number",
	TermIssueDate:      "invoice issue date",
	TermTaxPointDate:   "value added tax point date",
	TermDueDate:        "payment due date",
	TermPaymentTerms:   "payment terms",
	TermSellerName:     "seller name",
	TermSellerLegalID:  "seller legal registration identifier",
	TermSellerVAT:      "seller VAT identifier",
	TermSellerLine:     "seller address line 1",
	TermSellerCity:     "seller city",
	TermSellerPostcode: "seller post code",
	TermBuyerName:      "buyer name",
	TermBuyerLegalID:   "buyer legal registration identifier",
	TermBuyerLine:      "buyer address line 1",
	TermBuyerCity:      "buyer city",
	TermBuyerPostcode:  "buyer post code",
	TermDeliveryLine:   "deliver to address line 1",
	TermRemittance:     "remittance information",
	TermPayeeIBAN:      "payment account identifier",
	TermPayeeBIC:       "payment service provider identifier",
	TermLineTotal:      "sum of invoice line net amount",
	TermTaxBasisTotal:  "invoice total amount without VAT",
	TermTaxTotal:       "invoice total VAT amount",
	TermGrandTotal:     "invoice total amount with VAT",
	TermDuePayable:     "amount due for payment",
	TermVATBasis:       "VAT category taxable amount",
	TermVATAmount:      "VAT category tax amount",
	TermVATCategory:    "VAT category code",
	TermVATRate:        "VAT category rate",
}

// Name returns the human readable EN 16931 name of the term.
func (k TermKey) Name() string {
	if n, ok := termNames[k]; ok {
		return n
	}
	return "unknown term"
}

func (k TermKey) String() string {
	return string(k)
}

// criticalTerms may not be rendered empty: they identify the invoice or carry an amount.
var criticalTerms = map[TermKey]bool{
	TermInvoiceNumber: true,
	TermIssueDate:     true,
	TermTaxBasisTotal: true,
	TermTaxTotal:      true,
	TermGrandTotal:    true,
	TermDuePayable:    true,
}

// BusinessTermMap is an insertion-ordered mapping from business terms to normalized values.
type BusinessTermMap struct {
	keys   []TermKey
	values map[TermKey]string
}

// NewBusinessTermMap returns an empty map.
func NewBusinessTermMap() *BusinessTermMap {
	return &BusinessTermMap{values: make(map[TermKey]string)}
}

// Set stores v under k, keeping the original position when k already exists.
func (m *BusinessTermMap) Set(k TermKey, v string) {
	if _, exists := m.values[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Get returns the value for k and whether it is present.
func (m *BusinessTermMap) Get(k TermKey) (string, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Value returns the value for k or the empty string.
func (m *BusinessTermMap) Value(k TermKey) string {
	return m.values[k]
}

// Has reports whether k is present, even with an empty value.
func (m *BusinessTermMap) Has(k TermKey) bool {
	_, ok := m.values[k]
	return ok
}

// Delete removes k.
func (m *BusinessTermMap) Delete(k TermKey) {
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *BusinessTermMap) Keys() []TermKey {
	out := make([]TermKey, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of terms.
func (m *BusinessTermMap) Len() int {
	return len(m.keys)
}

// Map returns a plain copy keyed by the BT identifier.
func (m *BusinessTermMap) Map() map[string]string {
	out := make(map[string]string, len(m.keys))
	for _, k := range m.keys {
		out[string(k)] = m.values[k]
	}
	return out
}

// TermsFromMap builds a BusinessTermMap from BT-keyed values, in key order of known terms.
func TermsFromMap(in map[string]string) *BusinessTermMap {
	m := NewBusinessTermMap()
	for _, k := range termOrder {
		if v, ok := in[string(k)]; ok {
			m.Set(k, v)
		}
	}
	return m
}

// termOrder is the order BuildTerms emits keys in.
var termOrder = []TermKey{
	TermInvoiceNumber, TermIssueDate, TermTaxPointDate, TermDueDate, TermPaymentTerms,
	TermSellerName, TermSellerLegalID, TermSellerVAT, TermSellerLine, TermSellerPostcode, TermSellerCity,
	TermBuyerName, TermBuyerLegalID, TermBuyerLine, TermBuyerPostcode, TermBuyerCity,
	TermDeliveryLine, TermRemittance, TermPayeeIBAN, TermPayeeBIC,
	TermLineTotal, TermTaxBasisTotal, TermTaxTotal, TermGrandTotal, TermDuePayable,
	TermVATBasis, TermVATAmount, TermVATCategory, TermVATRate,
}

// BuildTerms maps an InvoiceRecord onto the business terms. Every key is always
// set, so an absent source field yields an empty value rather than a missing key.
func BuildTerms(rec InvoiceRecord) *BusinessTermMap {
	m := NewBusinessTermMap()

	m.Set(TermInvoiceNumber, rec.InvoiceNumber)
	m.Set(TermIssueDate, NormalizeDate(rec.InvoiceDate))
	m.Set(TermTaxPointDate, NormalizeDate(rec.InvoiceDate))
	m.Set(TermDueDate, NormalizeDate(rec.DueDate))
	m.Set(TermPaymentTerms, rec.PaymentTerms)

	m.Set(TermSellerName, rec.VendorName)
	m.Set(TermSellerLegalID, ExtractSIREN(rec.VendorSIRET))
	m.Set(TermSellerVAT, NormalizeVAT(rec.VendorVAT))
	sellerLine, sellerRest := splitAddress(rec.VendorAddress)
	sellerPostcode, sellerCity := splitCity(sellerRest)
	m.Set(TermSellerLine, sellerLine)
	m.Set(TermSellerPostcode, sellerPostcode)
	m.Set(TermSellerCity, sellerCity)

	m.Set(TermBuyerName, rec.ClientName)
	m.Set(TermBuyerLegalID, ExtractSIREN(rec.ClientSIREN))
	buyerLine, buyerRest := splitAddress(rec.ClientAddress)
	buyerPostcode, buyerCity := splitCity(buyerRest)
	m.Set(TermBuyerLine, buyerLine)
	m.Set(TermBuyerPostcode, buyerPostcode)
	m.Set(TermBuyerCity, buyerCity)

	m.Set(TermDeliveryLine, rec.DeliveryAddress)
	m.Set(TermRemittance, rec.InvoiceNumber)
	m.Set(TermPayeeIBAN, rec.IBAN)
	m.Set(TermPayeeBIC, rec.BIC)

	m.Set(TermLineTotal, rec.AmountHT)
	m.Set(TermTaxBasisTotal, rec.AmountHT)
	m.Set(TermTaxTotal, rec.VATAmount)
	m.Set(TermGrandTotal, rec.AmountTTC)
	// Full-amount invoices only: no prepayment is modelled.
	m.Set(TermDuePayable, rec.AmountTTC)

	m.Set(TermVATBasis, rec.AmountHT)
	m.Set(TermVATAmount, rec.VATAmount)
	m.Set(TermVATCategory, vatCategory(rec.VATRate))
	m.Set(TermVATRate, rec.VATRate)

	return m
}

// vatCategory returns Z for a zero rate and S (standard) otherwise.
func vatCategory(rate string) string {
	r := strings.ReplaceAll(strings.TrimSpace(rate), ",", ".")
	if r == "" {
		return "S"
	}
	d, err := decimal.NewFromString(r)
	if err == nil && d.IsZero() {
		return "Z"
	}
	return "S"
}

// MissingTermError reports a business term the selected profile needs but the map lacks.
type MissingTermError struct {
	Key     TermKey
	Profile Profile
	Empty   bool
}

func (e *MissingTermError) Error() string {
	if e.Empty {
		return fmt.Sprintf("missing required business term %s (%s) for profile %s: value is empty",
			e.Key, e.Key.Name(), e.Profile)
	}
	return fmt.Sprintf("missing required business term %s (%s) for profile %s", e.Key, e.Key.Name(), e.Profile)
}

// CheckRequired verifies that every term required by profile is present and that
// critical identity and amount terms are not empty.
func CheckRequired(terms *BusinessTermMap, profile Profile) error {
	for _, k := range profile.RequiredTerms() {
		v, ok := terms.Get(k)
		if !ok {
			return &MissingTermError{Key: k, Profile: profile}
		}
		if criticalTerms[k] && strings.TrimSpace(v) == "" {
			return &MissingTermError{Key: k, Profile: profile, Empty: true}
		}
	}
	return nil
}
