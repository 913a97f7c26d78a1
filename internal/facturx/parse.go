package facturx

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

const (
	pathTransaction = "rsm:SupplyChainTradeTransaction/"
	pathAgreement   = pathTransaction + "ram:ApplicableHeaderTradeAgreement/"
	pathSeller      = pathAgreement + "ram:SellerTradeParty/"
	pathBuyer       = pathAgreement + "ram:BuyerTradeParty/"
	pathSettlement  = pathTransaction + "ram:ApplicableHeaderTradeSettlement/"
	pathHeaderTax   = pathSettlement + "ram:ApplicableTradeTax/"
	pathSummation   = pathSettlement + "ram:SpecifiedTradeSettlementHeaderMonetarySummation/"
	pathGuideline   = "rsm:ExchangedDocumentContext/ram:GuidelineSpecifiedDocumentContextParameter/ram:ID"
)

// termPaths locates each business term relative to the CII root element.
var termPaths = []struct {
	key  TermKey
	path string
}{
	{TermInvoiceNumber, "rsm:ExchangedDocument/ram:ID"},
	{TermIssueDate, "rsm:ExchangedDocument/ram:IssueDateTime/udt:DateTimeString"},
	{TermTaxPointDate, pathHeaderTax + "ram:TaxPointDate/udt:DateString"},
	{TermDueDate, pathSettlement + "ram:SpecifiedTradePaymentTerms/ram:DueDateDateTime/udt:DateTimeString"},
	{TermPaymentTerms, pathSettlement + "ram:SpecifiedTradePaymentTerms/ram:Description"},
	{TermSellerName, pathSeller + "ram:Name"},
	{TermSellerLegalID, pathSeller + "ram:SpecifiedLegalOrganization/ram:ID"},
	{TermSellerVAT, pathSeller + "ram:SpecifiedTaxRegistration/ram:ID"},
	{TermSellerLine, pathSeller + "ram:PostalTradeAddress/ram:LineOne"},
	{TermSellerPostcode, pathSeller + "ram:PostalTradeAddress/ram:PostcodeCode"},
	{TermSellerCity, pathSeller + "ram:PostalTradeAddress/ram:CityName"},
	{TermBuyerName, pathBuyer + "ram:Name"},
	{TermBuyerLegalID, pathBuyer + "ram:SpecifiedLegalOrganization/ram:ID"},
	{TermBuyerLine, pathBuyer + "ram:PostalTradeAddress/ram:LineOne"},
	{TermBuyerPostcode, pathBuyer + "ram:PostalTradeAddress/ram:PostcodeCode"},
	{TermBuyerCity, pathBuyer + "ram:PostalTradeAddress/ram:CityName"},
	{TermDeliveryLine, pathTransaction + "ram:ApplicableHeaderTradeDelivery/ram:ShipToTradeParty/ram:PostalTradeAddress/ram:LineOne"},
	{TermRemittance, pathSettlement + "ram:PaymentReference"},
	{TermPayeeIBAN, pathSettlement + "ram:SpecifiedTradeSettlementPaymentMeans/ram:PayeePartyCreditorFinancialAccount/ram:IBANID"},
	{TermPayeeBIC, pathSettlement + "ram:SpecifiedTradeSettlementPaymentMeans/ram:PayeeSpecifiedCreditorFinancialInstitution/ram:BICID"},
	{TermLineTotal, pathSummation + "ram:LineTotalAmount"},
	{TermTaxBasisTotal, pathSummation + "ram:TaxBasisTotalAmount"},
	{TermTaxTotal, pathSummation + "ram:TaxTotalAmount"},
	{TermGrandTotal, pathSummation + "ram:GrandTotalAmount"},
	{TermDuePayable, pathSummation + "ram:DuePayableAmount"},
	{TermVATBasis, pathHeaderTax + "ram:BasisAmount"},
	{TermVATAmount, pathHeaderTax + "ram:CalculatedAmount"},
	{TermVATCategory, pathHeaderTax + "ram:CategoryCode"},
	{TermVATRate, pathHeaderTax + "ram:RateApplicablePercent"},
}

// ErrNotCII is returned when the document root is not a CrossIndustryInvoice.
var ErrNotCII = errors.New("document is not a CII CrossIndustryInvoice")

// ParseCII reads the business terms back out of a CII document. Only terms
// whose element exists are set; the profile comes from the guideline identifier.
func ParseCII(data []byte) (*BusinessTermMap, Profile, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, "", fmt.Errorf("failed to parse CII XML: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "CrossIndustryInvoice" {
		return nil, "", ErrNotCII
	}

	terms := NewBusinessTermMap()
	for _, tp := range termPaths {
		if e := root.FindElement(tp.path); e != nil {
			terms.Set(tp.key, e.Text())
		}
	}

	profile := DefaultProfile
	if e := root.FindElement(pathGuideline); e != nil {
		profile = ProfileFromGuideline(e.Text())
	}
	return terms, profile, nil
}

// ProfileFromGuideline maps a guideline identifier back to its profile.
func ProfileFromGuideline(id string) Profile {
	for _, p := range Profiles {
		if p.GuidelineID() == id {
			return p
		}
	}
	return DefaultProfile
}
