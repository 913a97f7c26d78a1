package xref

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/a3tai/facturx-bridge/internal/pdf/custom"
)

// buildClassicPDF lays out objects (numbered from 1) behind a header and
// appends a classic xref section and trailer with correct offsets.
func buildClassicPDF(objects []string, trailerExtra string) ([]byte, int64) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xrefAt := int64(buf.Len())
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, trailerExtra, xrefAt)
	return buf.Bytes(), xrefAt
}

func simpleObjects() []string {
	return []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
		"<< /Length 5 0 R >>\nstream\nBT ET\nendstream",
		"5",
	}
}

func TestOpen_Classic(t *testing.T) {
	data, xrefAt := buildClassicPDF(simpleObjects(), " /Info 2 0 R")

	parser, err := Open(data)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if parser.GetStartXRef() != xrefAt {
		t.Errorf("Expected startxref %d, got %d", xrefAt, parser.GetStartXRef())
	}
	if parser.GetEntryCount() != 6 {
		t.Errorf("Expected 6 entries, got %d", parser.GetEntryCount())
	}
	if entry := parser.GetEntry(0); entry == nil || entry.Type != EntryFree {
		t.Error("Entry 0 should be free")
	}

	trailer := parser.GetTrailer()
	if trailer == nil {
		t.Fatal("No trailer found")
	}
	if trailer.Size != 6 {
		t.Errorf("Expected trailer size 6, got %d", trailer.Size)
	}
	if trailer.Root == nil || trailer.Root.ObjectID.Number != 1 {
		t.Errorf("Expected Root 1 0 R, got %v", trailer.Root)
	}
	if trailer.Info == nil || trailer.Info.ObjectID.Number != 2 {
		t.Errorf("Expected Info 2 0 R, got %v", trailer.Info)
	}
	if trailer.Encrypted {
		t.Error("Document should not be encrypted")
	}

	catalog, err := parser.Catalog()
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if catalog.GetName("Type") != "Catalog" {
		t.Errorf("Expected /Type /Catalog, got %q", catalog.GetName("Type"))
	}

	stream, ok := parser.ResolveStream(custom.Ref(4, 0))
	if !ok {
		t.Fatal("Object 4 should resolve to a stream")
	}
	if string(stream.Data) != "BT ET" {
		t.Errorf("Stream with indirect length read %q", stream.Data)
	}
}

func TestParseXRef_IncrementalUpdate(t *testing.T) {
	base, firstXRef := buildClassicPDF(simpleObjects(), "")

	var buf bytes.Buffer
	buf.Write(base)
	catalogAt := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R /Lang (fr-FR) >>\nendobj\n")
	secondXRef := buf.Len()
	fmt.Fprintf(&buf, "xref\n1 1\n%010d 00000 n \ntrailer\n<< /Size 6 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n",
		catalogAt, firstXRef, secondXRef)

	parser, err := Open(buf.Bytes())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	chain := parser.GetPrevChain()
	if len(chain) != 2 || chain[0] != int64(secondXRef) || chain[1] != firstXRef {
		t.Errorf("Unexpected prev chain %v", chain)
	}
	if len(parser.GetAllTrailers()) != 2 {
		t.Errorf("Expected 2 trailers, got %d", len(parser.GetAllTrailers()))
	}

	if entry := parser.GetEntry(1); entry == nil || entry.Offset != int64(catalogAt) {
		t.Errorf("Newest section should win for object 1, got %+v", entry)
	}

	catalog, err := parser.Catalog()
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if catalog.GetString("Lang") != "fr-FR" {
		t.Error("Expected the updated catalog revision")
	}
	if !parser.HasEntry(4) {
		t.Error("Objects from the older section should still be reachable")
	}
}

func TestParseXRef_PrevLoop(t *testing.T) {
	data, xrefAt := buildClassicPDF(simpleObjects(), "")
	looped := bytes.Replace(data, []byte("/Root 1 0 R"), []byte(fmt.Sprintf("/Root 1 0 R /Prev %d", xrefAt)), 1)

	parser := NewXRefParser(looped)
	start, err := parser.FindStartXRef()
	if err != nil {
		t.Fatalf("FindStartXRef failed: %v", err)
	}
	if err := parser.ParseXRef(start); err != nil {
		t.Fatalf("ParseXRef failed: %v", err)
	}
	if len(parser.GetPrevChain()) != 1 {
		t.Errorf("Loop should stop after one section, got %v", parser.GetPrevChain())
	}
	if len(parser.Warnings()) == 0 {
		t.Error("Expected a loop warning")
	}
}

func TestParseXRefEntryLine(t *testing.T) {
	tests := []struct {
		line    string
		want    *XRefEntry
		wantErr bool
	}{
		{"0000000009 00000 n ", &XRefEntry{Type: EntryInUse, Offset: 9}, false},
		{"0000000000 65535 f", &XRefEntry{Type: EntryFree, Generation: 65535}, false},
		{"0000000009 00000 x", nil, true},
		{"invalid entry", nil, true},
		{"abc 00000 n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseXRefEntryLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseXRef_MalformedEntrySkipped(t *testing.T) {
	data, _ := buildClassicPDF(simpleObjects(), "")
	broken := bytes.Replace(data, []byte(" 00000 n \n"), []byte(" 0000x n \n"), 1)

	parser, err := Open(broken)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if parser.HasEntry(1) {
		t.Error("Malformed entry for object 1 should be skipped")
	}
	if !parser.HasEntry(2) {
		t.Error("Entries after the malformed one should be kept")
	}
	if len(parser.Warnings()) == 0 {
		t.Error("Expected a warning for the skipped entry")
	}
}

func TestOpen_RebuildsBrokenStartXRef(t *testing.T) {
	data, _ := buildClassicPDF(simpleObjects(), "")
	idx := bytes.LastIndex(data, []byte("startxref\n"))
	broken := append(append([]byte{}, data[:idx]...), []byte("startxref\n99999999\n%%EOF\n")...)

	parser, err := Open(broken)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !parser.Rebuilt() {
		t.Error("Expected the table to be rebuilt")
	}
	if parser.GetStartXRef() != -1 {
		t.Errorf("Rebuilt table has no startxref, got %d", parser.GetStartXRef())
	}

	catalog, err := parser.Catalog()
	if err != nil {
		t.Fatalf("Catalog failed after rebuild: %v", err)
	}
	if catalog.GetName("Type") != "Catalog" {
		t.Error("Rebuilt table should find the catalog")
	}
	if parser.GetTrailer().Size != 6 {
		t.Errorf("Expected rebuilt Size 6, got %d", parser.GetTrailer().Size)
	}
}

func TestOpen_RebuildWithoutTrailer(t *testing.T) {
	data := []byte("%PDF-1.3\n1 0 obj\n<< /Pages 2 0 R >>\nendobj\n2 0 obj\n<< /Type /Catalog /Pages 3 0 R >>\nendobj\n")

	parser, err := Open(data)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if root := parser.GetTrailer().Root; root == nil || root.ObjectID.Number != 2 {
		t.Errorf("Expected catalog 2 0 R, got %v", root)
	}
}

func TestOpen_NotAPDF(t *testing.T) {
	if _, err := Open([]byte("hello world")); err == nil {
		t.Error("Expected an error for non-PDF input")
	}
}

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// buildXRefStreamPDF writes objects 1 (catalog) and 2 (pages) into an
// object stream (3) and indexes everything through a cross-reference
// stream (4).
func buildXRefStreamPDF(t *testing.T) []byte {
	t.Helper()

	obj1 := "<< /Type /Catalog /Pages 2 0 R >>"
	obj2 := "<< /Type /Pages /Kids [] /Count 0 >>"
	header := fmt.Sprintf("1 0 2 %d ", len(obj1)+1)
	objStm := header + obj1 + " " + obj2

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	objStmAt := buf.Len()
	stm := &custom.Stream{
		Dict: custom.NewDictionary().
			Set("Type", &custom.Name{Value: "ObjStm"}).
			Set("N", custom.Int(2)).
			Set("First", custom.Int(int64(len(header)))).
			Set("Filter", &custom.Name{Value: "FlateDecode"}),
		Data: zlibBytes(t, []byte(objStm)),
	}
	custom.WriteIndirectObject(&buf, custom.ObjectID{Number: 3}, stm)

	xrefAt := buf.Len()
	rows := []byte{
		0, 0, 0, 0xFF, // 0 free
		2, 0, 3, 0, // 1 in objstm 3 index 0
		2, 0, 3, 1, // 2 in objstm 3 index 1
		1, byte(objStmAt >> 8), byte(objStmAt), 0, // 3 at objStmAt
		1, byte(xrefAt >> 8), byte(xrefAt), 0, // 4 the xref stream itself
	}
	xs := &custom.Stream{
		Dict: custom.NewDictionary().
			Set("Type", &custom.Name{Value: "XRef"}).
			Set("Size", custom.Int(5)).
			Set("W", custom.NewArray(custom.Int(1), custom.Int(2), custom.Int(1))).
			Set("Root", custom.Ref(1, 0)).
			Set("Filter", &custom.Name{Value: "FlateDecode"}),
		Data: zlibBytes(t, rows),
	}
	custom.WriteIndirectObject(&buf, custom.ObjectID{Number: 4}, xs)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes()
}

func TestOpen_XRefStreamAndObjectStream(t *testing.T) {
	parser, err := Open(buildXRefStreamPDF(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if parser.Rebuilt() {
		t.Fatalf("xref stream should parse without rebuild: %v", parser.Warnings())
	}

	if entry := parser.GetEntry(1); entry == nil || entry.Type != EntryCompressed || entry.Offset != 3 {
		t.Errorf("Object 1 should be compressed in stream 3, got %+v", entry)
	}
	if entry := parser.GetEntry(2); entry == nil || entry.StreamIndex != 1 {
		t.Errorf("Object 2 should be at index 1, got %+v", entry)
	}

	catalog, err := parser.Catalog()
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	pages, ok := parser.ResolveDictionary(catalog.Get("Pages"))
	if !ok || pages.GetName("Type") != "Pages" {
		t.Errorf("Pages should resolve through the object stream, got %v", pages)
	}
	if parser.GetTrailer().Size != 5 {
		t.Errorf("Expected Size 5, got %d", parser.GetTrailer().Size)
	}
}

func TestResolveObject(t *testing.T) {
	data, _ := buildClassicPDF(simpleObjects(), "")
	parser, err := Open(data)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if parser.GetCacheSize() != 0 {
		t.Errorf("Initial cache size should be 0, got %d", parser.GetCacheSize())
	}

	obj, err := parser.ResolveObject(2, 0)
	if err != nil {
		t.Fatalf("ResolveObject failed: %v", err)
	}
	if obj.Type() != custom.TypeDictionary {
		t.Errorf("Expected dictionary, got %v", obj.Type())
	}
	if parser.GetCacheSize() != 1 {
		t.Errorf("Cache size should be 1 after resolution, got %d", parser.GetCacheSize())
	}

	free, err := parser.ResolveObject(0, 65535)
	if err != nil || free.Type() != custom.TypeNull {
		t.Errorf("Free object should resolve to null, got %v, %v", free, err)
	}

	_, err = parser.ResolveObject(999, 0)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}

	resolved, err := parser.Resolve(custom.Ref(999, 0))
	if err != nil || resolved.Type() != custom.TypeNull {
		t.Errorf("Dangling reference should resolve to null, got %v, %v", resolved, err)
	}

	parser.ClearCache()
	if parser.GetCacheSize() != 0 {
		t.Errorf("Cache size should be 0 after clear, got %d", parser.GetCacheSize())
	}
}

func TestResolveObject_WrongOffset(t *testing.T) {
	data, _ := buildClassicPDF(simpleObjects(), "")
	parser, err := Open(data)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	parser.entries[2] = &XRefEntry{Type: EntryInUse, Offset: parser.GetEntry(3).Offset}
	if _, err := parser.ResolveObject(2, 0); err == nil || !strings.Contains(err.Error(), "holds object") {
		t.Errorf("Expected object number mismatch error, got %v", err)
	}
}

func TestEntryType_String(t *testing.T) {
	tests := map[EntryType]string{
		EntryFree:       "free",
		EntryInUse:      "in-use",
		EntryCompressed: "compressed",
		EntryType(99):   "unknown",
	}
	for typ, want := range tests {
		if got := typ.String(); got != want {
			t.Errorf("EntryType(%d).String() = %q, want %q", typ, got, want)
		}
	}
}
