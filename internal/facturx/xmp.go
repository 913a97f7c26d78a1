package facturx

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// XMP namespaces.
const (
	NamespaceX             = "adobe:ns:meta/"
	NamespaceRDF           = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NamespaceDC            = "http://purl.org/dc/elements/1.1/"
	NamespacePDF           = "http://ns.adobe.com/pdf/1.3/"
	NamespaceXMP           = "http://ns.adobe.com/xap/1.0/"
	NamespacePDFAID        = "http://www.aiim.org/pdfa/ns/id/"
	NamespacePDFAExtension = "http://www.aiim.org/pdfa/ns/extension/"
	NamespacePDFASchema    = "http://www.aiim.org/pdfa/ns/schema#"
	NamespacePDFAProperty  = "http://www.aiim.org/pdfa/ns/property#"
	NamespaceFacturX       = "urn:factur-x:pdfa:CrossIndustryDocument:invoice:1p0#"
)

// XMPTimeFormat is ISO 8601 with millisecond precision.
const XMPTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DefaultProducer is written to pdf:Producer when the caller gives none.
const DefaultProducer = "facturx-bridge"

const xpacketID = "W5M0MpCehiHzreSzNTczkc9d"

// XMPInput carries the values declared in the XMP packet.
type XMPInput struct {
	Profile       Profile
	InvoiceNumber string
	VendorName    string
	Producer      string
	Timestamp     time.Time
}

type fxProperty struct {
	name, description string
}

var fxProperties = []fxProperty{
	{"DocumentFileName", "The name of the embedded XML document"},
	{"DocumentType", "The type of the hybrid document in capital letters, e.g. INVOICE or ORDER"},
	{"Version", "The actual version of the standard applying to the embedded XML document"},
	{"ConformanceLevel", "The conformance level of the embedded XML document"},
}

var (
	extensionOnce sync.Once
	extensionDesc *etree.Element
)

// extensionSchema returns a copy of the PDF/A extension schema description that
// declares the fx properties. The original is built once and never modified.
func extensionSchema() *etree.Element {
	extensionOnce.Do(func() {
		desc := etree.NewElement("rdf:Description")
		desc.CreateAttr("xmlns:pdfaExtension", NamespacePDFAExtension)
		desc.CreateAttr("xmlns:pdfaSchema", NamespacePDFASchema)
		desc.CreateAttr("xmlns:pdfaProperty", NamespacePDFAProperty)
		desc.CreateAttr("rdf:about", "")

		bag := desc.CreateElement("pdfaExtension:schemas").CreateElement("rdf:Bag")
		schema := bag.CreateElement("rdf:li")
		schema.CreateAttr("rdf:parseType", "Resource")
		textElement(schema, "pdfaSchema:schema", "Factur-X PDFA Extension Schema")
		textElement(schema, "pdfaSchema:namespaceURI", NamespaceFacturX)
		textElement(schema, "pdfaSchema:prefix", "fx")

		seq := schema.CreateElement("pdfaSchema:property").CreateElement("rdf:Seq")
		for _, p := range fxProperties {
			li := seq.CreateElement("rdf:li")
			li.CreateAttr("rdf:parseType", "Resource")
			textElement(li, "pdfaProperty:name", p.name)
			textElement(li, "pdfaProperty:valueType", "Text")
			textElement(li, "pdfaProperty:category", "external")
			textElement(li, "pdfaProperty:description", p.description)
		}
		extensionDesc = desc
	})
	return extensionDesc.Copy()
}

// RenderXMP renders the XMP packet declaring the embedded factur-x.xml at the
// input's conformance level.
func RenderXMP(in XMPInput) ([]byte, error) {
	profile := in.Profile
	if !profile.Valid() {
		profile = DefaultProfile
	}
	producer := in.Producer
	if producer == "" {
		producer = DefaultProducer
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := ts.UTC().Format(XMPTimeFormat)

	doc := etree.NewDocument()
	doc.CreateProcInst("xpacket", "begin=\"\ufeff\" id=\""+xpacketID+"\"")

	meta := etree.NewElement("x:xmpmeta")
	meta.CreateAttr("xmlns:x", NamespaceX)
	doc.SetRoot(meta)
	rdf := meta.CreateElement("rdf:RDF")
	rdf.CreateAttr("xmlns:rdf", NamespaceRDF)

	dc := description(rdf, "dc", NamespaceDC)
	langAlt(dc.CreateElement("dc:title"), "Invoice "+in.InvoiceNumber)
	creator := dc.CreateElement("dc:creator").CreateElement("rdf:Seq")
	textElement(creator, "rdf:li", in.VendorName)
	langAlt(dc.CreateElement("dc:description"), "Factur-X invoice, "+profile.ConformanceLevel()+" profile")

	pdf := description(rdf, "pdf", NamespacePDF)
	textElement(pdf, "pdf:Producer", producer)

	xmp := description(rdf, "xmp", NamespaceXMP)
	textElement(xmp, "xmp:CreatorTool", producer)
	textElement(xmp, "xmp:CreateDate", stamp)
	textElement(xmp, "xmp:ModifyDate", stamp)
	textElement(xmp, "xmp:MetadataDate", stamp)

	id := description(rdf, "pdfaid", NamespacePDFAID)
	textElement(id, "pdfaid:part", "3")
	textElement(id, "pdfaid:conformance", "B")

	fx := description(rdf, "fx", NamespaceFacturX)
	textElement(fx, "fx:DocumentType", "INVOICE")
	textElement(fx, "fx:DocumentFileName", AttachmentName)
	textElement(fx, "fx:Version", "1.0")
	textElement(fx, "fx:ConformanceLevel", profile.ConformanceLevel())

	rdf.AddChild(extensionSchema())

	doc.CreateProcInst("xpacket", `end="w"`)
	doc.Indent(1)
	return doc.WriteToBytes()
}

func description(rdf *etree.Element, prefix, ns string) *etree.Element {
	d := rdf.CreateElement("rdf:Description")
	d.CreateAttr("xmlns:"+prefix, ns)
	d.CreateAttr("rdf:about", "")
	return d
}

func langAlt(parent *etree.Element, value string) {
	li := textElement(parent.CreateElement("rdf:Alt"), "rdf:li", value)
	li.CreateAttr("xml:lang", "x-default")
}

// XMPInfo is what ReadXMP recovers from an XMP packet.
type XMPInfo struct {
	PDFAPart         string `json:"pdfaPart,omitempty"`
	PDFAConformance  string `json:"pdfaConformance,omitempty"`
	DocumentType     string `json:"documentType,omitempty"`
	DocumentFileName string `json:"documentFileName,omitempty"`
	Version          string `json:"version,omitempty"`
	ConformanceLevel string `json:"conformanceLevel,omitempty"`
}

// Profile maps the declared conformance level back to a Profile.
func (i XMPInfo) Profile() (Profile, bool) {
	for _, p := range Profiles {
		if p.ConformanceLevel() == strings.ToUpper(strings.TrimSpace(i.ConformanceLevel)) {
			return p, true
		}
	}
	return "", false
}

// ReadXMP extracts the pdfaid and fx properties of an XMP packet. Both the
// element form and the attribute shorthand of rdf:Description are accepted.
func ReadXMP(data []byte) (XMPInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return XMPInfo{}, fmt.Errorf("parse XMP: %w", err)
	}
	if doc.Root() == nil {
		return XMPInfo{}, fmt.Errorf("parse XMP: no root element")
	}

	var info XMPInfo
	set := func(ns, name, value string) {
		value = strings.TrimSpace(value)
		switch {
		case ns == NamespacePDFAID && name == "part":
			info.PDFAPart = value
		case ns == NamespacePDFAID && name == "conformance":
			info.PDFAConformance = value
		case ns == NamespaceFacturX && name == "DocumentType":
			info.DocumentType = value
		case ns == NamespaceFacturX && name == "DocumentFileName":
			info.DocumentFileName = value
		case ns == NamespaceFacturX && name == "Version":
			info.Version = value
		case ns == NamespaceFacturX && name == "ConformanceLevel":
			info.ConformanceLevel = value
		}
	}

	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for i := range e.Attr {
			set(e.Attr[i].NamespaceURI(), e.Attr[i].Key, e.Attr[i].Value)
		}
		children := e.ChildElements()
		if len(children) == 0 {
			set(e.NamespaceURI(), e.Tag, e.Text())
		}
		for _, c := range children {
			walk(c)
		}
	}
	walk(doc.Root())
	return info, nil
}
