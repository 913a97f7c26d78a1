package facturx

import "strings"

// Profile is a Factur-X conformance profile.
type Profile string

const (
	ProfileMinimum  Profile = "MINIMUM"
	ProfileBasicWL  Profile = "BASIC_WL"
	ProfileBasic    Profile = "BASIC"
	ProfileEN16931  Profile = "EN16931"
	ProfileExtended Profile = "EXTENDED"

	// DefaultProfile is used when the caller supplies no profile or an unknown one.
	DefaultProfile = ProfileBasicWL
)

const en16931URN = "urn:cen.eu:en16931:2017"

// Profiles lists every supported profile from the smallest to the richest.
var Profiles = []Profile{ProfileMinimum, ProfileBasicWL, ProfileBasic, ProfileEN16931, ProfileExtended}

// ParseProfile maps loose user spellings onto a Profile, falling back to DefaultProfile.
func ParseProfile(s string) Profile {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)

	switch key {
	case "MINIMUM", "MIN":
		return ProfileMinimum
	case "BASICWL", "BASICWITHOUTLINES":
		return ProfileBasicWL
	case "BASIC":
		return ProfileBasic
	case "EN16931", "COMFORT":
		return ProfileEN16931
	case "EXTENDED":
		return ProfileExtended
	default:
		return DefaultProfile
	}
}

// Valid reports whether p is one of the known profiles.
func (p Profile) Valid() bool {
	for _, known := range Profiles {
		if p == known {
			return true
		}
	}
	return false
}

func (p Profile) String() string {
	return string(p)
}

// GuidelineID returns the CII guideline specification identifier (BT-24).
func (p Profile) GuidelineID() string {
	switch p {
	case ProfileMinimum:
		return en16931URN + "#compliant#urn:factur-x.eu:1p0:minimum"
	case ProfileBasic:
		return en16931URN + "#compliant#urn:factur-x.eu:1p0:basic"
	case ProfileEN16931:
		return en16931URN
	case ProfileExtended:
		return en16931URN + "#conformant#urn:factur-x.eu:1p0:extended"
	default:
		return en16931URN + "#compliant#urn:factur-x.eu:1p0:basicwl"
	}
}

// ConformanceLevel returns the value declared in the XMP fx:ConformanceLevel property.
func (p Profile) ConformanceLevel() string {
	switch p {
	case ProfileMinimum:
		return "MINIMUM"
	case ProfileBasic:
		return "BASIC"
	case ProfileEN16931:
		return "EN 16931"
	case ProfileExtended:
		return "EXTENDED"
	default:
		return "BASIC WL"
	}
}

// HasLines reports whether the profile requires invoice lines.
func (p Profile) HasLines() bool {
	return p == ProfileBasic || p == ProfileEN16931 || p == ProfileExtended
}

// HasTaxBreakdown reports whether the profile carries the VAT breakdown and payment blocks.
func (p Profile) HasTaxBreakdown() bool {
	return p != ProfileMinimum
}

// RequiredTerms returns the business terms that must be present in the map for p.
func (p Profile) RequiredTerms() []TermKey {
	required := []TermKey{
		TermInvoiceNumber, TermIssueDate, TermSellerName, TermBuyerName,
		TermTaxBasisTotal, TermTaxTotal, TermGrandTotal, TermDuePayable,
	}
	if p == ProfileMinimum {
		return required
	}
	required = append(required,
		TermTaxPointDate, TermSellerVAT,
		TermVATBasis, TermVATAmount, TermVATCategory, TermVATRate,
	)
	if p.HasLines() {
		required = append(required, TermLineTotal)
	}
	return required
}
