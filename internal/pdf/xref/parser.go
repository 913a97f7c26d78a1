package xref

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/a3tai/facturx-bridge/internal/pdf/custom"
)

// ErrObjectNotFound is returned when an object number has no usable entry
var ErrObjectNotFound = errors.New("object not found")

// maxSections bounds the /Prev chain so corrupted offsets cannot loop forever
const maxSections = 256

// XRefParser reads the cross-reference chain of an in-memory PDF and
// resolves objects through it, including objects packed in object streams.
type XRefParser struct {
	data        []byte
	entries     map[int]*XRefEntry // objNum -> entry from the newest section
	trailers    []*TrailerDict     // newest first
	startxref   int64
	prevChain   []int64
	objectCache map[custom.ObjectID]custom.PDFObject
	objStreams  map[int64]*objectStream
	resolving   map[custom.ObjectID]bool
	warnings    []string
	rebuilt     bool
}

// XRefEntry represents an entry in the cross-reference table
type XRefEntry struct {
	Type        EntryType // Free, InUse, Compressed
	Offset      int64     // Byte offset for InUse, or object stream number for Compressed
	Generation  int       // Generation number (0 for compressed)
	StreamIndex int       // Index within object stream (for compressed objects)
}

// EntryType represents the type of cross-reference entry
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

func (t EntryType) String() string {
	switch t {
	case EntryFree:
		return "free"
	case EntryInUse:
		return "in-use"
	case EntryCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// TrailerDict represents a PDF trailer dictionary (or the dictionary of a
// cross-reference stream, which plays the same role)
type TrailerDict struct {
	Size      int                 // Total number of entries
	Prev      *int64              // Offset to previous xref (for incremental updates)
	Root      *custom.IndirectRef // Catalog dictionary
	Info      *custom.IndirectRef // Info dictionary
	Encrypted bool                // /Encrypt present
	ID        [][]byte            // File identifiers
	XRefStm   *int64              // Hybrid-file cross-reference stream offset
	Dict      *custom.Dictionary  // Raw dictionary
}

type objectStream struct {
	data    []byte
	offsets map[int64]int64 // objNum -> offset into data
	order   []int64         // objNum by index
}

// NewXRefParser creates a new cross-reference parser over data
func NewXRefParser(data []byte) *XRefParser {
	return &XRefParser{
		data:        data,
		entries:     make(map[int]*XRefEntry),
		trailers:    make([]*TrailerDict, 0),
		objectCache: make(map[custom.ObjectID]custom.PDFObject),
		objStreams:  make(map[int64]*objectStream),
		resolving:   make(map[custom.ObjectID]bool),
	}
}

// Open locates and parses the cross-reference chain of data. When the chain
// is unreadable the table is rebuilt by scanning for object headers.
func Open(data []byte) (*XRefParser, error) {
	p := NewXRefParser(data)

	start, err := p.FindStartXRef()
	if err == nil {
		err = p.ParseXRef(start)
	}
	if err == nil {
		err = p.ValidateConsistency()
	}
	if err != nil {
		p.warn("cross-reference chain unusable (%v), rebuilding", err)
		if rerr := p.Rebuild(); rerr != nil {
			return nil, fmt.Errorf("%v; rebuild failed: %w", err, rerr)
		}
	}
	return p, nil
}

func (p *XRefParser) warn(format string, args ...interface{}) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the non-fatal problems met while parsing
func (p *XRefParser) Warnings() []string {
	return p.warnings
}

// Rebuilt reports whether the table was reconstructed by scanning
func (p *XRefParser) Rebuilt() bool {
	return p.rebuilt
}

// Data returns the document bytes
func (p *XRefParser) Data() []byte {
	return p.data
}

// FindStartXRef finds the startxref offset by reading from the end of the file
func (p *XRefParser) FindStartXRef() (int64, error) {
	tail := p.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}

	idx := bytes.LastIndex(tail, []byte(custom.StartXRefKeyword))
	if idx < 0 {
		return 0, custom.NewParseError("startxref keyword not found", int64(len(p.data)))
	}

	base := int64(len(p.data) - len(tail))
	lexer := custom.NewPDFLexer(p.data, base+int64(idx+len(custom.StartXRefKeyword)))
	tok, err := lexer.ExpectToken(custom.TokenNumber)
	if err != nil {
		return 0, custom.NewParseError("missing offset after startxref", base+int64(idx))
	}

	offset, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil || offset < 0 || offset >= int64(len(p.data)) {
		return 0, custom.NewParseError(fmt.Sprintf("invalid startxref offset %q", tok.Value), tok.Pos)
	}
	return offset, nil
}

// ParseXRef parses all cross-reference sections starting from startxref
func (p *XRefParser) ParseXRef(startxref int64) error {
	p.startxref = startxref
	p.entries = make(map[int]*XRefEntry)
	p.trailers = p.trailers[:0]
	p.prevChain = p.prevChain[:0]

	visited := make(map[int64]bool)
	offset := startxref
	for offset >= 0 && len(p.prevChain) < maxSections {
		if visited[offset] {
			p.warn("xref /Prev loop at offset %d", offset)
			break
		}
		visited[offset] = true
		p.prevChain = append(p.prevChain, offset)

		trailer, err := p.parseSection(offset)
		if err != nil {
			if len(p.trailers) == 0 {
				return fmt.Errorf("parse xref at %d: %w", offset, err)
			}
			// older sections are optional; keep what the newer ones gave us
			p.warn("parse xref at %d: %v", offset, err)
			break
		}
		p.trailers = append(p.trailers, trailer)

		if trailer.XRefStm != nil && !visited[*trailer.XRefStm] {
			visited[*trailer.XRefStm] = true
			if _, err := p.parseXRefStream(*trailer.XRefStm); err != nil {
				p.warn("parse hybrid xref stream at %d: %v", *trailer.XRefStm, err)
			}
		}

		if trailer.Prev == nil {
			break
		}
		offset = *trailer.Prev
	}

	if len(p.trailers) == 0 {
		return fmt.Errorf("no valid xref sections found (started at offset %d)", startxref)
	}
	return nil
}

// parseSection dispatches on the section format found at offset
func (p *XRefParser) parseSection(offset int64) (*TrailerDict, error) {
	if offset < 0 || offset >= int64(len(p.data)) {
		return nil, fmt.Errorf("offset %d out of range", offset)
	}

	lexer := custom.NewPDFLexer(p.data, offset)
	tok, err := lexer.NextToken()
	if err != nil {
		return nil, err
	}

	switch tok.Type {
	case custom.TokenXRefKeyword:
		return p.parseXRefTable(tok.Pos)
	case custom.TokenNumber:
		return p.parseXRefStream(tok.Pos)
	default:
		return nil, fmt.Errorf("expected xref table or stream, got %s %q", tok.Type, tok.Value)
	}
}

// parseXRefTable handles traditional cross-reference tables
func (p *XRefParser) parseXRefTable(offset int64) (*TrailerDict, error) {
	pos := int(offset) + len(custom.XRefKeyword)

	for {
		line, next := readLine(p.data, pos)
		if next == pos {
			return nil, fmt.Errorf("unexpected end of xref table")
		}
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			pos = next
			continue
		}
		if strings.HasPrefix(trimmed, custom.TrailerKeyword) {
			dictStart := int64(pos + strings.Index(line, custom.TrailerKeyword) + len(custom.TrailerKeyword))
			return p.parseTrailerAt(dictStart)
		}

		parts := strings.Fields(trimmed)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", trimmed)
		}
		startNum, err1 := strconv.Atoi(parts[0])
		count, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || startNum < 0 || count < 0 {
			return nil, fmt.Errorf("invalid xref subsection header: %q", trimmed)
		}
		pos = next

		for i := 0; i < count; i++ {
			entryLine, after := readLine(p.data, pos)
			if after == pos {
				return nil, fmt.Errorf("unexpected end of xref entries")
			}
			pos = after

			entry, err := parseXRefEntryLine(entryLine)
			if err != nil {
				p.warn("skipping malformed xref entry %d: %v", startNum+i, err)
				continue
			}
			p.addEntry(startNum+i, entry)
		}
	}
}

// readLine returns the line starting at pos without its terminator and the
// offset of the following line. CR, LF and CRLF all end a line.
func readLine(data []byte, pos int) (string, int) {
	if pos >= len(data) {
		return "", pos
	}
	end := pos
	for end < len(data) && data[end] != '\n' && data[end] != '\r' {
		end++
	}
	next := end
	if next < len(data) && data[next] == '\r' {
		next++
	}
	if next < len(data) && data[next] == '\n' {
		next++
	}
	return string(data[pos:end]), next
}

// parseXRefEntryLine parses a single "oooooooooo ggggg n" entry line
func parseXRefEntryLine(line string) (*XRefEntry, error) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid xref entry format (expected 3 parts, got %d): %q", len(parts), line)
	}

	offset, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid offset '%s': %w", parts[0], err)
	}

	generation, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid generation '%s': %w", parts[1], err)
	}

	entry := &XRefEntry{Offset: offset, Generation: generation}
	switch parts[2] {
	case "n":
		entry.Type = EntryInUse
	case "f":
		entry.Type = EntryFree
	default:
		return nil, fmt.Errorf("unknown xref flag %q", parts[2])
	}
	return entry, nil
}

func (p *XRefParser) parseTrailerAt(offset int64) (*TrailerDict, error) {
	parser := custom.NewPDFParser(p.data)
	parser.SeekTo(offset)
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trailer: %w", err)
	}
	dict, ok := obj.(*custom.Dictionary)
	if !ok {
		return nil, fmt.Errorf("trailer must be a dictionary, got %s", obj.Type())
	}
	return newTrailerDict(dict), nil
}

func newTrailerDict(dict *custom.Dictionary) *TrailerDict {
	t := &TrailerDict{
		Size:      int(dict.GetInt("Size")),
		Root:      dict.GetRef("Root"),
		Info:      dict.GetRef("Info"),
		Encrypted: dict.Has("Encrypt"),
		Dict:      dict,
	}
	if n, ok := dict.Get("Prev").(*custom.Number); ok {
		v := n.Int()
		t.Prev = &v
	}
	if n, ok := dict.Get("XRefStm").(*custom.Number); ok {
		v := n.Int()
		t.XRefStm = &v
	}
	for _, elem := range dict.GetArray("ID").Elements {
		if s, ok := elem.(*custom.String); ok {
			t.ID = append(t.ID, []byte(s.Value))
		}
	}
	return t
}

// parseXRefStream handles cross-reference streams (PDF 1.5+)
func (p *XRefParser) parseXRefStream(offset int64) (*TrailerDict, error) {
	obj, err := custom.NewPDFParser(p.data).ParseIndirectObjectAt(offset)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.Object.(*custom.Stream)
	if !ok || stream.Dict.GetName("Type") != "XRef" {
		return nil, fmt.Errorf("object %s at %d is not a cross-reference stream", obj.ID, offset)
	}

	data, err := custom.DecodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	w := stream.Dict.GetArray("W")
	if w.Len() != 3 {
		return nil, fmt.Errorf("xref stream /W must have 3 elements, got %d", w.Len())
	}
	var widths [3]int
	rowSize := 0
	for i := range widths {
		n, ok := w.Get(i).(*custom.Number)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return nil, fmt.Errorf("invalid xref stream /W")
		}
		widths[i] = int(n.Int())
		rowSize += widths[i]
	}
	if rowSize == 0 {
		return nil, fmt.Errorf("invalid xref stream /W")
	}

	size := stream.Dict.GetInt("Size")
	index := []int64{0, size}
	if idx := stream.Dict.GetArray("Index"); idx.Len() > 0 && idx.Len()%2 == 0 {
		index = index[:0]
		for _, e := range idx.Elements {
			if n, ok := e.(*custom.Number); ok {
				index = append(index, n.Int())
			}
		}
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowSize > len(data) {
				p.warn("xref stream at %d truncated", offset)
				return newTrailerDict(stream.Dict), nil
			}
			row := data[pos : pos+rowSize]
			pos += rowSize

			typ := int64(1)
			if widths[0] > 0 {
				typ = readField(row[:widths[0]])
			}
			f2 := readField(row[widths[0] : widths[0]+widths[1]])
			f3 := readField(row[widths[0]+widths[1]:])

			var entry *XRefEntry
			switch typ {
			case 0:
				entry = &XRefEntry{Type: EntryFree, Offset: f2, Generation: int(f3)}
			case 1:
				entry = &XRefEntry{Type: EntryInUse, Offset: f2, Generation: int(f3)}
			case 2:
				entry = &XRefEntry{Type: EntryCompressed, Offset: f2, StreamIndex: int(f3)}
			default:
				// unknown types are references to the null object
				continue
			}
			p.addEntry(int(first+j), entry)
		}
	}

	return newTrailerDict(stream.Dict), nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// addEntry records entry unless a newer section already defined objNum
func (p *XRefParser) addEntry(objNum int, entry *XRefEntry) {
	if _, exists := p.entries[objNum]; exists {
		return
	}
	p.entries[objNum] = entry
}

var objHeader = regexp.MustCompile(`(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// Rebuild reconstructs the table by scanning the file for "N G obj"
// headers. Later definitions win, matching incremental update semantics.
func (p *XRefParser) Rebuild() error {
	p.entries = make(map[int]*XRefEntry)
	p.trailers = p.trailers[:0]
	p.objectCache = make(map[custom.ObjectID]custom.PDFObject)
	p.objStreams = make(map[int64]*objectStream)
	p.rebuilt = true

	found := make(map[int]*XRefEntry)
	for _, m := range objHeader.FindAllSubmatchIndex(p.data, -1) {
		start := m[0]
		if start > 0 && custom.IsRegular(p.data[start-1]) {
			continue
		}
		num, _ := strconv.Atoi(string(p.data[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(p.data[m[4]:m[5]]))
		found[num] = &XRefEntry{Type: EntryInUse, Offset: int64(start), Generation: gen}
	}
	if len(found) == 0 {
		return fmt.Errorf("no objects found")
	}
	p.entries = found

	var trailer *custom.Dictionary
	if idx := bytes.LastIndex(p.data, []byte(custom.TrailerKeyword)); idx >= 0 {
		if t, err := p.parseTrailerAt(int64(idx + len(custom.TrailerKeyword))); err == nil && t.Root != nil {
			trailer = t.Dict
		}
	}

	var catalog *custom.IndirectRef
	for _, num := range p.GetObjectNumbers() {
		obj, err := p.ResolveObject(num, p.entries[num].Generation)
		if err != nil {
			continue
		}
		var dict *custom.Dictionary
		switch o := obj.(type) {
		case *custom.Dictionary:
			dict = o
		case *custom.Stream:
			dict = o.Dict
		default:
			continue
		}

		switch dict.GetName("Type") {
		case "Catalog":
			catalog = custom.Ref(int64(num), int64(p.entries[num].Generation))
		case "XRef":
			if trailer == nil {
				trailer = dict
			}
		case "ObjStm":
			if os, err := p.loadObjectStream(int64(num)); err == nil {
				for i, inner := range os.order {
					if _, ok := p.entries[int(inner)]; !ok {
						p.entries[int(inner)] = &XRefEntry{Type: EntryCompressed, Offset: int64(num), StreamIndex: i}
					}
				}
			}
		}
	}

	if trailer == nil {
		trailer = custom.NewDictionary()
	}
	trailer = trailer.Clone()
	if trailer.GetRef("Root") == nil {
		if catalog == nil {
			return fmt.Errorf("no document catalog found")
		}
		trailer.Set("Root", catalog)
	}
	trailer.Remove("Prev")
	trailer.Remove("XRefStm")
	trailer.Set("Size", custom.Int(int64(p.MaxObjectNumber()+1)))

	p.trailers = append(p.trailers, newTrailerDict(trailer))
	p.startxref = -1
	return nil
}

// GetEntry retrieves the xref entry for objNum
func (p *XRefParser) GetEntry(objNum int) *XRefEntry {
	return p.entries[objNum]
}

// HasEntry checks if an entry exists for the given object number
func (p *XRefParser) HasEntry(objNum int) bool {
	return p.GetEntry(objNum) != nil
}

// GetTrailer returns the newest trailer dictionary
func (p *XRefParser) GetTrailer() *TrailerDict {
	if len(p.trailers) > 0 {
		return p.trailers[0]
	}
	return nil
}

// GetAllTrailers returns all trailer dictionaries in the Prev chain
func (p *XRefParser) GetAllTrailers() []*TrailerDict {
	return p.trailers
}

// GetEntryCount returns the total number of xref entries
func (p *XRefParser) GetEntryCount() int {
	return len(p.entries)
}

// GetObjectNumbers returns all object numbers that have xref entries, sorted
func (p *XRefParser) GetObjectNumbers() []int {
	numbers := make([]int, 0, len(p.entries))
	for objNum := range p.entries {
		numbers = append(numbers, objNum)
	}
	sort.Ints(numbers)
	return numbers
}

// MaxObjectNumber returns the highest object number with an entry
func (p *XRefParser) MaxObjectNumber() int {
	max := 0
	for objNum := range p.entries {
		if objNum > max {
			max = objNum
		}
	}
	return max
}

// ValidateConsistency performs basic consistency checks on the xref table
func (p *XRefParser) ValidateConsistency() error {
	trailer := p.GetTrailer()
	if trailer == nil {
		return fmt.Errorf("no trailer found")
	}

	if trailer.Root == nil {
		return fmt.Errorf("missing Root reference in trailer")
	}

	if trailer.Size > 0 && p.MaxObjectNumber() >= trailer.Size {
		p.warn("xref object number %d exceeds trailer Size %d", p.MaxObjectNumber(), trailer.Size)
	}

	return nil
}

// ResolveObject resolves object objNum through the xref table. Free entries
// resolve to null; unknown numbers are ErrObjectNotFound.
func (p *XRefParser) ResolveObject(objNum int, generation int) (custom.PDFObject, error) {
	objID := custom.ObjectID{Number: int64(objNum), Generation: int64(generation)}

	if cached, exists := p.objectCache[objID]; exists {
		return cached, nil
	}

	entry := p.GetEntry(objNum)
	if entry == nil {
		return nil, fmt.Errorf("object %d %d: %w", objNum, generation, ErrObjectNotFound)
	}

	if p.resolving[objID] {
		return nil, fmt.Errorf("circular reference while resolving object %d %d", objNum, generation)
	}
	p.resolving[objID] = true
	defer delete(p.resolving, objID)

	var obj custom.PDFObject
	var err error

	switch entry.Type {
	case EntryFree:
		return &custom.Null{}, nil

	case EntryInUse:
		obj, err = p.parseObjectAt(entry.Offset, objNum)

	case EntryCompressed:
		obj, err = p.parseCompressedObject(entry.Offset, entry.StreamIndex, objNum)

	default:
		err = fmt.Errorf("unknown entry type %d", entry.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("resolve object %d %d: %w", objNum, generation, err)
	}

	p.objectCache[objID] = obj
	return obj, nil
}

func (p *XRefParser) parseObjectAt(offset int64, objNum int) (custom.PDFObject, error) {
	parser := custom.NewPDFParser(p.data)
	parser.SetLengthResolver(p.resolveLength)

	indirect, err := parser.ParseIndirectObjectAt(offset)
	if err != nil {
		return nil, err
	}
	if indirect.ID.Number != int64(objNum) {
		return nil, fmt.Errorf("offset %d holds object %s", offset, indirect.ID)
	}
	return indirect.Object, nil
}

func (p *XRefParser) resolveLength(ref *custom.IndirectRef) (int64, bool) {
	obj, err := p.ResolveObject(int(ref.ObjectID.Number), int(ref.ObjectID.Generation))
	if err != nil {
		return 0, false
	}
	if n, ok := obj.(*custom.Number); ok {
		return n.Int(), true
	}
	return 0, false
}

func (p *XRefParser) loadObjectStream(streamNum int64) (*objectStream, error) {
	if os, ok := p.objStreams[streamNum]; ok {
		return os, nil
	}

	entry := p.GetEntry(int(streamNum))
	if entry == nil || entry.Type != EntryInUse {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, ErrObjectNotFound)
	}
	obj, err := p.parseObjectAt(entry.Offset, int(streamNum))
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*custom.Stream)
	if !ok || stream.Dict.GetName("Type") != "ObjStm" {
		return nil, fmt.Errorf("object %d is not an object stream", streamNum)
	}

	data, err := custom.DecodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("decode object stream %d: %w", streamNum, err)
	}

	n := stream.Dict.GetInt("N")
	first := stream.Dict.GetInt("First")
	os := &objectStream{data: data, offsets: make(map[int64]int64, n)}

	lexer := custom.NewPDFLexer(data, 0)
	for i := int64(0); i < n; i++ {
		numTok, err1 := lexer.ExpectToken(custom.TokenNumber)
		offTok, err2 := lexer.ExpectToken(custom.TokenNumber)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("object stream %d: bad header at pair %d", streamNum, i)
		}
		num, _ := strconv.ParseInt(numTok.Value, 10, 64)
		off, _ := strconv.ParseInt(offTok.Value, 10, 64)
		os.offsets[num] = first + off
		os.order = append(os.order, num)
	}

	p.objStreams[streamNum] = os
	return os, nil
}

func (p *XRefParser) parseCompressedObject(streamNum int64, index int, objNum int) (custom.PDFObject, error) {
	os, err := p.loadObjectStream(streamNum)
	if err != nil {
		return nil, err
	}

	offset, ok := os.offsets[int64(objNum)]
	if !ok {
		if index < 0 || index >= len(os.order) {
			return nil, fmt.Errorf("object %d not in object stream %d", objNum, streamNum)
		}
		offset = os.offsets[os.order[index]]
	}

	parser := custom.NewPDFParser(os.data)
	parser.SeekTo(offset)
	return parser.ParseObject()
}

// Resolve follows indirect references until a direct object is reached.
// A nil or dangling reference resolves to null.
func (p *XRefParser) Resolve(obj custom.PDFObject) (custom.PDFObject, error) {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(*custom.IndirectRef)
		if !ok {
			if obj == nil {
				return &custom.Null{}, nil
			}
			return obj, nil
		}
		resolved, err := p.ResolveObject(int(ref.ObjectID.Number), int(ref.ObjectID.Generation))
		if errors.Is(err, ErrObjectNotFound) {
			return &custom.Null{}, nil
		}
		if err != nil {
			return nil, err
		}
		obj = resolved
	}
	return nil, fmt.Errorf("reference chain too deep")
}

// ResolveDictionary resolves obj and returns it when it is a dictionary
// (or the dictionary of a stream).
func (p *XRefParser) ResolveDictionary(obj custom.PDFObject) (*custom.Dictionary, bool) {
	resolved, err := p.Resolve(obj)
	if err != nil {
		return nil, false
	}
	switch o := resolved.(type) {
	case *custom.Dictionary:
		return o, true
	case *custom.Stream:
		return o.Dict, true
	}
	return nil, false
}

// ResolveStream resolves obj and returns it when it is a stream
func (p *XRefParser) ResolveStream(obj custom.PDFObject) (*custom.Stream, bool) {
	resolved, err := p.Resolve(obj)
	if err != nil {
		return nil, false
	}
	s, ok := resolved.(*custom.Stream)
	return s, ok
}

// Catalog resolves the document catalog named by the newest trailer
func (p *XRefParser) Catalog() (*custom.Dictionary, error) {
	trailer := p.GetTrailer()
	if trailer == nil || trailer.Root == nil {
		return nil, fmt.Errorf("missing Root reference in trailer")
	}
	dict, ok := p.ResolveDictionary(trailer.Root)
	if !ok {
		return nil, fmt.Errorf("catalog %s is not a dictionary", trailer.Root)
	}
	return dict, nil
}

// GetStartXRef returns the startxref offset, or -1 after a rebuild
func (p *XRefParser) GetStartXRef() int64 {
	return p.startxref
}

// GetPrevChain returns the chain of xref offsets, newest first
func (p *XRefParser) GetPrevChain() []int64 {
	return p.prevChain
}

// ClearCache clears the object resolution cache
func (p *XRefParser) ClearCache() {
	p.objectCache = make(map[custom.ObjectID]custom.PDFObject)
	p.objStreams = make(map[int64]*objectStream)
}

// GetCacheSize returns the number of cached objects
func (p *XRefParser) GetCacheSize() int {
	return len(p.objectCache)
}
