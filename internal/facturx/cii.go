package facturx

import (
	"errors"
	"sync"

	"github.com/beevik/etree"
)

// CII namespaces (D16B, as used by Factur-X 1.0).
const (
	NamespaceRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	NamespaceRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	NamespaceQDT = "urn:un:unece:uncefact:data:standard:QualifiedDataType:100"
	NamespaceUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"
)

const (
	dateFormat102    = "102"
	schemeSIREN      = "0002"
	schemeVAT        = "VA"
	countryFR        = "FR"
	paymentMeansSEPA = "58"
	unitPiece        = "C62"
)

var (
	ciiRootOnce sync.Once
	ciiRoot     *etree.Element
)

// ciiSkeleton returns a private copy of the namespaced root element.
// The shared original is built once and never modified.
func ciiSkeleton() *etree.Element {
	ciiRootOnce.Do(func() {
		root := etree.NewElement("rsm:CrossIndustryInvoice")
		root.CreateAttr("xmlns:rsm", NamespaceRSM)
		root.CreateAttr("xmlns:qdt", NamespaceQDT)
		root.CreateAttr("xmlns:ram", NamespaceRAM)
		root.CreateAttr("xmlns:udt", NamespaceUDT)
		ciiRoot = root
	})
	return ciiRoot.Copy()
}

// RenderCII renders a CII document for terms at the given profile.
// Unknown profiles render as DefaultProfile.
func RenderCII(terms *BusinessTermMap, profile Profile) ([]byte, error) {
	if terms == nil {
		return nil, errors.New("business term map is nil")
	}
	if !profile.Valid() {
		profile = DefaultProfile
	}
	if err := CheckRequired(terms, profile); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := ciiSkeleton()
	doc.SetRoot(root)

	b := &ciiBuilder{terms: terms, profile: profile}
	b.context(root)
	b.document(root)
	b.transaction(root)

	doc.Indent(2)
	return doc.WriteToBytes()
}

// GenerateCII maps rec onto business terms and renders them.
func GenerateCII(rec InvoiceRecord, profile Profile) ([]byte, *BusinessTermMap, error) {
	terms := BuildTerms(rec)
	xml, err := RenderCII(terms, profile)
	if err != nil {
		return nil, terms, err
	}
	return xml, terms, nil
}

type ciiBuilder struct {
	terms   *BusinessTermMap
	profile Profile
}

func (b *ciiBuilder) required(k TermKey) bool {
	for _, r := range b.profile.RequiredTerms() {
		if r == k {
			return true
		}
	}
	return false
}

// emit reports whether the element for k should be written: required terms are
// written whenever present, optional ones only when they carry a value.
func (b *ciiBuilder) emit(k TermKey) bool {
	v, ok := b.terms.Get(k)
	if !ok {
		return false
	}
	return b.required(k) || v != ""
}

func textElement(parent *etree.Element, tag, value string) *etree.Element {
	e := parent.CreateElement(tag)
	e.SetText(value)
	return e
}

func dateElement(parent *etree.Element, tag, child, value string) {
	wrapper := parent.CreateElement(tag)
	d := textElement(wrapper, child, value)
	d.CreateAttr("format", dateFormat102)
}

func (b *ciiBuilder) context(root *etree.Element) {
	ctx := root.CreateElement("rsm:ExchangedDocumentContext")
	guideline := ctx.CreateElement("ram:GuidelineSpecifiedDocumentContextParameter")
	textElement(guideline, "ram:ID", b.profile.GuidelineID())
}

func (b *ciiBuilder) document(root *etree.Element) {
	doc := root.CreateElement("rsm:ExchangedDocument")
	textElement(doc, "ram:ID", b.terms.Value(TermInvoiceNumber))
	textElement(doc, "ram:TypeCode", DocumentTypeInvoice)
	dateElement(doc, "ram:IssueDateTime", "udt:DateTimeString", b.terms.Value(TermIssueDate))
}

func (b *ciiBuilder) transaction(root *etree.Element) {
	tx := root.CreateElement("rsm:SupplyChainTradeTransaction")
	if b.profile.HasLines() {
		b.lineItem(tx)
	}
	b.agreement(tx)
	b.delivery(tx)
	b.settlement(tx)
}

// lineItem writes the single synthetic line carried by line-bearing profiles.
func (b *ciiBuilder) lineItem(tx *etree.Element) {
	net := b.terms.Value(TermLineTotal)

	item := tx.CreateElement("ram:IncludedSupplyChainTradeLineItem")
	doc := item.CreateElement("ram:AssociatedDocumentLineDocument")
	textElement(doc, "ram:LineID", "1")

	product := item.CreateElement("ram:SpecifiedTradeProduct")
	textElement(product, "ram:Name", "Invoice "+b.terms.Value(TermInvoiceNumber))

	agreement := item.CreateElement("ram:SpecifiedLineTradeAgreement")
	price := agreement.CreateElement("ram:NetPriceProductTradePrice")
	textElement(price, "ram:ChargeAmount", net)

	delivery := item.CreateElement("ram:SpecifiedLineTradeDelivery")
	qty := textElement(delivery, "ram:BilledQuantity", "1")
	qty.CreateAttr("unitCode", unitPiece)

	settlement := item.CreateElement("ram:SpecifiedLineTradeSettlement")
	tax := settlement.CreateElement("ram:ApplicableTradeTax")
	textElement(tax, "ram:TypeCode", "VAT")
	textElement(tax, "ram:CategoryCode", b.terms.Value(TermVATCategory))
	if rate := b.terms.Value(TermVATRate); rate != "" {
		textElement(tax, "ram:RateApplicablePercent", rate)
	}
	sum := settlement.CreateElement("ram:SpecifiedTradeSettlementLineMonetarySummation")
	textElement(sum, "ram:LineTotalAmount", net)
}

type partyKeys struct {
	name, legalID, vat, line, postcode, city TermKey
}

var (
	sellerKeys = partyKeys{TermSellerName, TermSellerLegalID, TermSellerVAT, TermSellerLine, TermSellerPostcode, TermSellerCity}
	buyerKeys  = partyKeys{name: TermBuyerName, legalID: TermBuyerLegalID, line: TermBuyerLine, postcode: TermBuyerPostcode, city: TermBuyerCity}
)

func (b *ciiBuilder) agreement(tx *etree.Element) {
	agreement := tx.CreateElement("ram:ApplicableHeaderTradeAgreement")
	b.party(agreement.CreateElement("ram:SellerTradeParty"), sellerKeys)
	b.party(agreement.CreateElement("ram:BuyerTradeParty"), buyerKeys)
}

func (b *ciiBuilder) party(p *etree.Element, keys partyKeys) {
	textElement(p, "ram:Name", b.terms.Value(keys.name))

	if b.emit(keys.legalID) {
		org := p.CreateElement("ram:SpecifiedLegalOrganization")
		id := textElement(org, "ram:ID", b.terms.Value(keys.legalID))
		id.CreateAttr("schemeID", schemeSIREN)
	}

	addr := p.CreateElement("ram:PostalTradeAddress")
	if b.emit(keys.postcode) {
		textElement(addr, "ram:PostcodeCode", b.terms.Value(keys.postcode))
	}
	if b.emit(keys.line) {
		textElement(addr, "ram:LineOne", b.terms.Value(keys.line))
	}
	if b.emit(keys.city) {
		textElement(addr, "ram:CityName", b.terms.Value(keys.city))
	}
	textElement(addr, "ram:CountryID", countryFR)

	if keys.vat != "" && b.emit(keys.vat) {
		reg := p.CreateElement("ram:SpecifiedTaxRegistration")
		id := textElement(reg, "ram:ID", b.terms.Value(keys.vat))
		id.CreateAttr("schemeID", schemeVAT)
	}
}

func (b *ciiBuilder) delivery(tx *etree.Element) {
	delivery := tx.CreateElement("ram:ApplicableHeaderTradeDelivery")
	if !b.emit(TermDeliveryLine) {
		return
	}
	shipTo := delivery.CreateElement("ram:ShipToTradeParty")
	addr := shipTo.CreateElement("ram:PostalTradeAddress")
	textElement(addr, "ram:LineOne", b.terms.Value(TermDeliveryLine))
	textElement(addr, "ram:CountryID", countryFR)
}

func (b *ciiBuilder) settlement(tx *etree.Element) {
	s := tx.CreateElement("ram:ApplicableHeaderTradeSettlement")

	if b.profile.HasTaxBreakdown() && b.emit(TermRemittance) {
		textElement(s, "ram:PaymentReference", b.terms.Value(TermRemittance))
	}
	textElement(s, "ram:InvoiceCurrencyCode", Currency)

	if b.profile.HasTaxBreakdown() {
		b.paymentMeans(s)
		b.tradeTax(s)
		b.paymentTerms(s)
	}

	sum := s.CreateElement("ram:SpecifiedTradeSettlementHeaderMonetarySummation")
	if b.profile.HasTaxBreakdown() && b.emit(TermLineTotal) {
		textElement(sum, "ram:LineTotalAmount", b.terms.Value(TermLineTotal))
	}
	textElement(sum, "ram:TaxBasisTotalAmount", b.terms.Value(TermTaxBasisTotal))
	taxTotal := textElement(sum, "ram:TaxTotalAmount", b.terms.Value(TermTaxTotal))
	taxTotal.CreateAttr("currencyID", Currency)
	textElement(sum, "ram:GrandTotalAmount", b.terms.Value(TermGrandTotal))
	textElement(sum, "ram:DuePayableAmount", b.terms.Value(TermDuePayable))
}

func (b *ciiBuilder) paymentMeans(s *etree.Element) {
	if !b.emit(TermPayeeIBAN) {
		return
	}
	means := s.CreateElement("ram:SpecifiedTradeSettlementPaymentMeans")
	textElement(means, "ram:TypeCode", paymentMeansSEPA)
	account := means.CreateElement("ram:PayeePartyCreditorFinancialAccount")
	textElement(account, "ram:IBANID", b.terms.Value(TermPayeeIBAN))
	if b.profile == ProfileEN16931 || b.profile == ProfileExtended {
		if b.emit(TermPayeeBIC) {
			institution := means.CreateElement("ram:PayeeSpecifiedCreditorFinancialInstitution")
			textElement(institution, "ram:BICID", b.terms.Value(TermPayeeBIC))
		}
	}
}

func (b *ciiBuilder) tradeTax(s *etree.Element) {
	tax := s.CreateElement("ram:ApplicableTradeTax")
	textElement(tax, "ram:CalculatedAmount", b.terms.Value(TermVATAmount))
	textElement(tax, "ram:TypeCode", "VAT")
	textElement(tax, "ram:BasisAmount", b.terms.Value(TermVATBasis))
	textElement(tax, "ram:CategoryCode", b.terms.Value(TermVATCategory))
	if b.emit(TermTaxPointDate) {
		dateElement(tax, "ram:TaxPointDate", "udt:DateString", b.terms.Value(TermTaxPointDate))
	}
	if b.emit(TermVATRate) {
		textElement(tax, "ram:RateApplicablePercent", b.terms.Value(TermVATRate))
	}
}

func (b *ciiBuilder) paymentTerms(s *etree.Element) {
	hasDesc := b.emit(TermPaymentTerms)
	hasDue := b.emit(TermDueDate)
	if !hasDesc && !hasDue {
		return
	}
	terms := s.CreateElement("ram:SpecifiedTradePaymentTerms")
	if hasDesc {
		textElement(terms, "ram:Description", b.terms.Value(TermPaymentTerms))
	}
	if hasDue {
		dateElement(terms, "ram:DueDateDateTime", "udt:DateTimeString", b.terms.Value(TermDueDate))
	}
}
