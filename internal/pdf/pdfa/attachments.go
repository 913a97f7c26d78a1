package pdfa

import (
	"errors"
	"fmt"

	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf/custom"
	pdferrors "github.com/a3tai/facturx-bridge/internal/pdf/errors"
	"github.com/a3tai/facturx-bridge/internal/pdf/xref"
)

// ErrAttachmentNotFound is returned when the requested embedded file is absent
var ErrAttachmentNotFound = errors.New("embedded file not found")

// EmbeddedFile is one entry of the document's EmbeddedFiles name tree
type EmbeddedFile struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Subtype        string `json:"subtype,omitempty"`
	Relationship   string `json:"relationship,omitempty"`
	ModDate        string `json:"modDate,omitempty"`
	Size           int    `json:"size"`
	AssociatedFile bool   `json:"associatedFile"`
	Data           []byte `json:"-"`
}

// Structure summarises the Factur-X relevant parts of a catalog
type Structure struct {
	Header        string         `json:"header"`
	Metadata      []byte         `json:"-"`
	HasMetadata   bool           `json:"hasMetadata"`
	OutputIntents []string       `json:"outputIntents,omitempty"`
	EmbeddedFiles []EmbeddedFile `json:"embeddedFiles,omitempty"`
	Revisions     int            `json:"revisions"`
	Encrypted     bool           `json:"encrypted"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// FacturX returns the factur-x.xml attachment, if any
func (s *Structure) FacturX() (*EmbeddedFile, bool) {
	for i := range s.EmbeddedFiles {
		if s.EmbeddedFiles[i].Name == facturx.AttachmentName {
			return &s.EmbeddedFiles[i], true
		}
	}
	return nil, false
}

// ReadStructure reads the catalog of data and decodes its XMP packet and
// embedded files.
func ReadStructure(data []byte) (*Structure, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	doc, err := xref.Open(data)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeCorruptedXRef, "cannot read cross-reference data", err)
	}

	s := &Structure{
		Header:    header,
		Revisions: len(doc.GetAllTrailers()),
		Encrypted: doc.GetTrailer().Encrypted,
	}
	if s.Encrypted {
		s.Warnings = append(s.Warnings, doc.Warnings()...)
		return s, nil
	}

	catalog, err := doc.Catalog()
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeMissingObject, "cannot resolve document catalog", err)
	}

	if stream, ok := doc.ResolveStream(catalog.Get("Metadata")); ok {
		if xmp, err := custom.DecodeStream(stream); err == nil {
			s.Metadata = xmp
			s.HasMetadata = true
		} else {
			s.Warnings = append(s.Warnings, fmt.Sprintf("metadata stream: %v", err))
		}
	}

	if resolved, err := doc.Resolve(catalog.Get("OutputIntents")); err == nil {
		if arr, ok := resolved.(*custom.Array); ok {
			for _, item := range arr.Elements {
				if dict, ok := doc.ResolveDictionary(item); ok {
					s.OutputIntents = append(s.OutputIntents, dict.GetName("S"))
				}
			}
		}
	}

	associated := make(map[string]bool)
	if resolved, err := doc.Resolve(catalog.Get("AF")); err == nil {
		if arr, ok := resolved.(*custom.Array); ok {
			for _, item := range arr.Elements {
				if dict, ok := doc.ResolveDictionary(item); ok {
					associated[fileName(dict)] = true
				}
			}
		}
	}

	if names, ok := doc.ResolveDictionary(catalog.Get("Names")); ok {
		var entries []nameEntry
		collectNames(doc, names.Get("EmbeddedFiles"), &entries, 0)
		for _, e := range entries {
			file, err := readEmbeddedFile(doc, e)
			if err != nil {
				s.Warnings = append(s.Warnings, err.Error())
				continue
			}
			file.AssociatedFile = associated[file.Name]
			s.EmbeddedFiles = append(s.EmbeddedFiles, *file)
		}
	}

	s.Warnings = append(s.Warnings, doc.Warnings()...)
	return s, nil
}

// ExtractFacturX returns the decoded factur-x.xml attachment of data
func ExtractFacturX(data []byte) ([]byte, error) {
	s, err := ReadStructure(data)
	if err != nil {
		return nil, err
	}
	file, ok := s.FacturX()
	if !ok {
		return nil, fmt.Errorf("%s: %w", facturx.AttachmentName, ErrAttachmentNotFound)
	}
	return file.Data, nil
}

func readHeader(data []byte) (string, error) {
	window := data
	if len(window) > headerSearchWindow {
		window = window[:headerSearchWindow]
	}
	for i := 0; i+8 <= len(window); i++ {
		if string(window[i:i+5]) == "%PDF-" {
			return string(window[i+5 : i+8]), nil
		}
	}
	return "", pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidHeader, "missing %PDF- header")
}

func fileName(spec *custom.Dictionary) string {
	for _, key := range []string{"UF", "F"} {
		if s, ok := spec.Get(key).(*custom.String); ok {
			return s.Text()
		}
	}
	return ""
}

func readEmbeddedFile(doc *xref.XRefParser, e nameEntry) (*EmbeddedFile, error) {
	spec, ok := doc.ResolveDictionary(e.value)
	if !ok {
		return nil, fmt.Errorf("embedded file %q: file specification is not a dictionary", e.key.Text())
	}

	name := fileName(spec)
	if name == "" {
		name = e.key.Text()
	}
	file := &EmbeddedFile{
		Name:         name,
		Relationship: spec.GetName("AFRelationship"),
	}
	if desc, ok := spec.Get("Desc").(*custom.String); ok {
		file.Description = desc.Text()
	}

	ef, ok := doc.ResolveDictionary(spec.Get("EF"))
	if !ok {
		return nil, fmt.Errorf("embedded file %q: missing /EF", name)
	}
	target := ef.Get("UF")
	if _, isNull := target.(*custom.Null); isNull {
		target = ef.Get("F")
	}
	stream, ok := doc.ResolveStream(target)
	if !ok {
		return nil, fmt.Errorf("embedded file %q: /EF does not reference a stream", name)
	}

	payload, err := custom.DecodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("embedded file %q: %w", name, err)
	}
	file.Data = payload
	file.Size = len(payload)
	file.Subtype = stream.Dict.GetName("Subtype")
	if params, ok := doc.ResolveDictionary(stream.Dict.Get("Params")); ok {
		file.ModDate = params.GetString("ModDate")
	}
	return file, nil
}
