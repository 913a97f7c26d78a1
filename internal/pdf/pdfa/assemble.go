// Package pdfa turns an existing PDF into a PDF/A-3 shaped Factur-X
// container by appending an incremental update: the XMP packet, the
// embedded factur-x.xml, an output intent and a rewritten catalog.
package pdfa

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf/custom"
	pdferrors "github.com/a3tai/facturx-bridge/internal/pdf/errors"
	"github.com/a3tai/facturx-bridge/internal/pdf/xref"
)

// Output intent constants for the sRGB placeholder. No ICC profile is
// embedded, which strict PDF/A validators report.
const (
	OutputIntentSubtype       = "GTS_PDFA1"
	OutputConditionIdentifier = "sRGB"
	OutputConditionInfo       = "sRGB IEC61966-2.1"
	OutputIntentRegistry      = "http://www.color.org"
)

// headerSearchWindow is how far into the file the %PDF- marker may start
const headerSearchWindow = 1024

// Attachment is the Factur-X payload embedded by Assemble
type Attachment struct {
	XML           []byte
	XMP           []byte
	InvoiceNumber string
	Profile       facturx.Profile
	ModTime       time.Time

	// DocumentID is written as both /ID components. A random UUID is used
	// when empty.
	DocumentID []byte
}

// Assemble appends the Factur-X structures to original as an incremental
// update and returns the new document. original is never modified and no
// partial buffer is returned on error.
func Assemble(original []byte, att Attachment) ([]byte, error) {
	if len(att.XML) == 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidStructure, "attachment XML is empty")
	}
	if len(att.XMP) == 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidMetadata, "XMP packet is empty")
	}

	data, err := patchHeader(original)
	if err != nil {
		return nil, err
	}

	doc, err := xref.Open(data)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeCorruptedXRef, "cannot read cross-reference data", err)
	}

	trailer := doc.GetTrailer()
	if trailer.Encrypted {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeUnsupportedFeature, "encrypted documents are not supported")
	}

	catalog, err := doc.Catalog()
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeMissingObject, "cannot resolve document catalog", err)
	}

	size := int64(trailer.Size)
	if next := int64(doc.MaxObjectNumber() + 1); next > size {
		size = next
	}

	u := &update{
		doc:      doc,
		metaID:   custom.ObjectID{Number: size},
		fileID:   custom.ObjectID{Number: size + 1},
		specID:   custom.ObjectID{Number: size + 2},
		intentID: custom.ObjectID{Number: size + 3},
		rootID:   trailer.Root.ObjectID,
	}

	objects, err := u.build(catalog, att)
	if err != nil {
		return nil, err
	}

	id := att.DocumentID
	if len(id) == 0 {
		generated := uuid.New()
		id = generated[:]
	}

	out, err := u.write(data, objects, trailer, size+4, id)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// patchHeader copies original and rewrites a %PDF-1.x header to %PDF-1.7.
// The header keeps its length so every recorded offset stays valid.
func patchHeader(original []byte) ([]byte, error) {
	window := original
	if len(window) > headerSearchWindow {
		window = window[:headerSearchWindow]
	}
	at := bytes.Index(window, []byte("%PDF-"))
	if at < 0 {
		return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeInvalidHeader, "missing %PDF- header")
	}

	data := make([]byte, len(original))
	copy(data, original)

	v := at + len("%PDF-")
	if v+3 <= len(data) && data[v] == '1' && data[v+1] == '.' && data[v+2] >= '0' && data[v+2] < '7' {
		data[v+2] = '7'
	}
	return data, nil
}

type update struct {
	doc      *xref.XRefParser
	metaID   custom.ObjectID
	fileID   custom.ObjectID
	specID   custom.ObjectID
	intentID custom.ObjectID
	rootID   custom.ObjectID
}

type newObject struct {
	id  custom.ObjectID
	obj custom.PDFObject
}

func ref(id custom.ObjectID) *custom.IndirectRef {
	return &custom.IndirectRef{ObjectID: id}
}

func (u *update) build(catalog *custom.Dictionary, att Attachment) ([]newObject, error) {
	metadata := &custom.Stream{
		Dict: custom.NewDictionary().
			Set("Type", &custom.Name{Value: "Metadata"}).
			Set("Subtype", &custom.Name{Value: "XML"}),
		Data: att.XMP,
	}

	compressed, err := custom.EncodeFlate(att.XML)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeWriteFailed, "cannot compress attachment", err)
	}

	modTime := att.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	sum := md5.Sum(att.XML)

	embedded := &custom.Stream{
		Dict: custom.NewDictionary().
			Set("Type", &custom.Name{Value: "EmbeddedFile"}).
			Set("Subtype", &custom.Name{Value: "text/xml"}).
			Set("Filter", &custom.Name{Value: "FlateDecode"}).
			Set("Params", custom.NewDictionary().
				Set("ModDate", &custom.String{Value: custom.FormatDate(modTime)}).
				Set("Size", custom.Int(int64(len(att.XML)))).
				Set("CheckSum", &custom.String{Value: string(sum[:]), IsHex: true})),
		Data: compressed,
	}

	profile := att.Profile
	if !profile.Valid() {
		profile = facturx.DefaultProfile
	}

	filespec := custom.NewDictionary().
		Set("Type", &custom.Name{Value: "Filespec"}).
		Set("F", &custom.String{Value: facturx.AttachmentName}).
		Set("UF", custom.NewTextString(facturx.AttachmentName)).
		Set("EF", custom.NewDictionary().
			Set("F", ref(u.fileID)).
			Set("UF", ref(u.fileID))).
		Set("Desc", custom.NewTextString(describe(att.InvoiceNumber, profile))).
		Set("AFRelationship", &custom.Name{Value: "Data"})

	intent := custom.NewDictionary().
		Set("Type", &custom.Name{Value: "OutputIntent"}).
		Set("S", &custom.Name{Value: OutputIntentSubtype}).
		Set("OutputConditionIdentifier", &custom.String{Value: OutputConditionIdentifier}).
		Set("RegistryName", &custom.String{Value: OutputIntentRegistry}).
		Set("Info", &custom.String{Value: OutputConditionInfo})

	root, err := u.rewriteCatalog(catalog)
	if err != nil {
		return nil, err
	}

	return []newObject{
		{u.metaID, metadata},
		{u.fileID, embedded},
		{u.specID, filespec},
		{u.intentID, intent},
		{u.rootID, root},
	}, nil
}

func describe(invoiceNumber string, profile facturx.Profile) string {
	if invoiceNumber == "" {
		return fmt.Sprintf("Factur-X invoice (%s)", profile.ConformanceLevel())
	}
	return fmt.Sprintf("Factur-X invoice %s (%s)", invoiceNumber, profile.ConformanceLevel())
}

// rewriteCatalog returns a copy of catalog pointing at the new objects.
// Any earlier factur-x.xml attachment and PDF/A output intent is replaced.
func (u *update) rewriteCatalog(catalog *custom.Dictionary) (*custom.Dictionary, error) {
	root := catalog.Clone()
	root.Set("Type", &custom.Name{Value: "Catalog"})
	root.Set("Metadata", ref(u.metaID))

	if v := root.GetName("Version"); v != "" && v < "1.7" {
		root.Set("Version", &custom.Name{Value: "1.7"})
	}

	names := custom.NewDictionary()
	if existing, ok := u.doc.ResolveDictionary(root.Get("Names")); ok {
		names = existing.Clone()
	}
	names.Set("EmbeddedFiles", u.embeddedFilesTree(names.Get("EmbeddedFiles")))
	root.Set("Names", names)

	intents := custom.NewArray(ref(u.intentID))
	for _, item := range u.resolveArray(root.Get("OutputIntents")) {
		if dict, ok := u.doc.ResolveDictionary(item); ok && dict.GetName("S") == OutputIntentSubtype {
			continue
		}
		intents.Add(item)
	}
	root.Set("OutputIntents", intents)

	af := custom.NewArray()
	for _, item := range u.resolveArray(root.Get("AF")) {
		if u.isFacturXSpec(item) {
			continue
		}
		af.Add(item)
	}
	af.Add(ref(u.specID))
	root.Set("AF", af)

	return root, nil
}

func (u *update) resolveArray(obj custom.PDFObject) []custom.PDFObject {
	resolved, err := u.doc.Resolve(obj)
	if err != nil {
		return nil
	}
	if arr, ok := resolved.(*custom.Array); ok {
		return arr.Elements
	}
	return nil
}

func (u *update) isFacturXSpec(obj custom.PDFObject) bool {
	dict, ok := u.doc.ResolveDictionary(obj)
	if !ok {
		return false
	}
	for _, key := range []string{"UF", "F"} {
		if s, ok := dict.Get(key).(*custom.String); ok && s.Text() == facturx.AttachmentName {
			return true
		}
	}
	return false
}

type nameEntry struct {
	key   *custom.String
	value custom.PDFObject
}

// embeddedFilesTree flattens an existing EmbeddedFiles name tree, drops any
// previous factur-x.xml and returns a single sorted leaf holding ours.
func (u *update) embeddedFilesTree(existing custom.PDFObject) *custom.Dictionary {
	var entries []nameEntry
	collectNames(u.doc, existing, &entries, 0)

	kept := entries[:0]
	for _, e := range entries {
		if e.key.Text() != facturx.AttachmentName {
			kept = append(kept, e)
		}
	}
	kept = append(kept, nameEntry{key: &custom.String{Value: facturx.AttachmentName}, value: ref(u.specID)})

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].key.Value < kept[j].key.Value
	})

	names := custom.NewArray()
	for _, e := range kept {
		names.Add(e.key)
		names.Add(e.value)
	}
	return custom.NewDictionary().Set("Names", names)
}

// maxTreeDepth bounds name tree recursion on malformed /Kids cycles
const maxTreeDepth = 32

func collectNames(doc *xref.XRefParser, node custom.PDFObject, out *[]nameEntry, depth int) {
	if depth > maxTreeDepth {
		return
	}
	dict, ok := doc.ResolveDictionary(node)
	if !ok {
		return
	}

	if resolved, err := doc.Resolve(dict.Get("Names")); err == nil {
		if arr, ok := resolved.(*custom.Array); ok {
			for i := 0; i+1 < arr.Len(); i += 2 {
				key, err := doc.Resolve(arr.Get(i))
				if err != nil {
					continue
				}
				if s, ok := key.(*custom.String); ok {
					*out = append(*out, nameEntry{key: s, value: arr.Get(i + 1)})
				}
			}
		}
	}

	if resolved, err := doc.Resolve(dict.Get("Kids")); err == nil {
		if kids, ok := resolved.(*custom.Array); ok {
			for _, kid := range kids.Elements {
				collectNames(doc, kid, out, depth+1)
			}
		}
	}
}

type xrefRow struct {
	number     int64
	generation int64
	offset     int64
	inUse      bool
}

// write appends the objects, a classic xref section and the trailer
func (u *update) write(data []byte, objects []newObject, trailer *xref.TrailerDict, size int64, id []byte) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, len(data)+4096))
	out.Write(data)
	if n := len(data); n == 0 || (data[n-1] != '\n' && data[n-1] != '\r') {
		out.WriteByte('\n')
	}

	rows := make([]xrefRow, 0, len(objects))
	for _, o := range objects {
		rows = append(rows, xrefRow{
			number:     o.id.Number,
			generation: o.id.Generation,
			offset:     int64(out.Len()),
			inUse:      true,
		})
		custom.WriteIndirectObject(out, o.id, o.obj)
	}

	prev := u.doc.GetStartXRef()
	if prev < 0 {
		// The original chain was unusable, so this section must describe
		// every object on its own.
		full, err := u.fullTable(rows)
		if err != nil {
			return nil, err
		}
		rows = full
	}

	xrefAt := int64(out.Len())
	writeXRefSection(out, rows)

	t := custom.NewDictionary().
		Set("Size", custom.Int(size)).
		Set("Root", ref(u.rootID))
	if prev >= 0 {
		t.Set("Prev", custom.Int(prev))
	}
	if trailer.Info != nil {
		t.Set("Info", trailer.Info)
	}
	t.Set("ID", custom.NewArray(
		&custom.String{Value: string(id), IsHex: true},
		&custom.String{Value: string(id), IsHex: true},
	))

	out.WriteString("trailer\n")
	custom.WriteObject(out, t)
	fmt.Fprintf(out, "\nstartxref\n%d\n%s\n", xrefAt, custom.EOFMarker)

	return out.Bytes(), nil
}

// fullTable merges the rebuilt object table with the new rows. Compressed
// objects cannot be described by a classic section.
func (u *update) fullTable(rows []xrefRow) ([]xrefRow, error) {
	written := make(map[int64]bool, len(rows))
	for _, r := range rows {
		written[r.number] = true
	}

	all := append([]xrefRow{{number: 0, generation: 65535}}, rows...)
	for _, num := range u.doc.GetObjectNumbers() {
		if num == 0 || written[int64(num)] {
			continue
		}
		entry := u.doc.GetEntry(num)
		switch entry.Type {
		case xref.EntryInUse:
			all = append(all, xrefRow{number: int64(num), generation: int64(entry.Generation), offset: entry.Offset, inUse: true})
		case xref.EntryCompressed:
			return nil, pdferrors.NewPDFErrorWithContext(pdferrors.ErrorTypeCorruptedXRef,
				"cannot rewrite a damaged cross-reference table", fmt.Sprintf("object %d is compressed", num))
		}
	}
	return all, nil
}

// writeXRefSection groups rows into contiguous subsections
func writeXRefSection(out *bytes.Buffer, rows []xrefRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].number < rows[j].number })

	out.WriteString("xref\n")
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].number == rows[end-1].number+1 {
			end++
		}
		fmt.Fprintf(out, "%d %d\n", rows[start].number, end-start)
		for _, r := range rows[start:end] {
			kind := byte('n')
			if !r.inUse {
				kind = 'f'
			}
			fmt.Fprintf(out, "%010d %05d %c\r\n", r.offset, r.generation, kind)
		}
		start = end
	}
}
