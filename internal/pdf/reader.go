package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageBreak separates the text of consecutive pages
const PageBreak = "\n\n--- Page Break ---\n\n"

// TextExtractor pulls plain text out of PDF documents
type TextExtractor struct {
	maxTextSize int
}

// NewTextExtractor creates a text extractor that keeps at most maxTextSize bytes
func NewTextExtractor(maxTextSize int) *TextExtractor {
	if maxTextSize <= 0 {
		maxTextSize = 10 * 1024 * 1024 // 10MB text limit
	}
	return &TextExtractor{
		maxTextSize: maxTextSize,
	}
}

// openReader wraps pdf.NewReader, which panics on some malformed inputs
func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("failed to open PDF: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// Extract returns the text of every page. A document without any text is
// not an error: its content type tells scanned documents apart.
func (e *TextExtractor) Extract(data []byte) (*TextResult, error) {
	pdfReader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	content := e.extractTextContent(pdfReader)
	hasImages, imageCount := e.detectImages(pdfReader)

	return &TextResult{
		Text:        content,
		Pages:       pdfReader.NumPage(),
		ContentType: analyzeContentType(content, hasImages),
		HasImages:   hasImages,
		ImageCount:  imageCount,
	}, nil
}

// extractTextContent extracts text content from a PDF reader
func (e *TextExtractor) extractTextContent(pdfReader *pdf.Reader) string {
	var builder strings.Builder
	totalLength := 0

	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		content, ok := pageText(pdfReader, pageNum)
		if !ok {
			continue
		}

		if totalLength+len(content) > e.maxTextSize {
			remaining := e.maxTextSize - totalLength
			if remaining > 0 {
				builder.WriteString(content[:remaining])
			}
			break
		}

		builder.WriteString(content)
		totalLength += len(content)

		if pageNum < pdfReader.NumPage() {
			builder.WriteString(PageBreak)
		}
	}

	return builder.String()
}

func pageText(pdfReader *pdf.Reader, pageNum int) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()

	page := pdfReader.Page(pageNum)
	if page.V.IsNull() {
		return "", false
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return content, true
}

// analyzeContentType determines the type of content in the PDF
func analyzeContentType(textContent string, hasImages bool) string {
	// Minimum text length to consider content meaningful
	const minMeaningfulTextLength = 50

	text := strings.TrimSpace(strings.ReplaceAll(textContent, strings.TrimSpace(PageBreak), ""))

	if len(text) < minMeaningfulTextLength {
		if hasImages {
			return ContentScannedImages
		}
		return ContentNone
	}

	if hasImages {
		return ContentMixed
	}

	return ContentText
}

// detectImages scans the PDF for image objects
func (e *TextExtractor) detectImages(pdfReader *pdf.Reader) (bool, int) {
	imageCount := 0

	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		imageCount += countImagesOnPage(pdfReader, pageNum)
	}

	return imageCount > 0, imageCount
}

// countImagesOnPage counts image XObjects referenced by a page
func countImagesOnPage(pdfReader *pdf.Reader, pageNum int) (count int) {
	defer func() {
		if recover() != nil {
			count = 0
		}
	}()

	page := pdfReader.Page(pageNum)
	if page.V.IsNull() {
		return 0
	}

	resources := page.V.Key("Resources")
	if resources.IsNull() {
		return 0
	}

	xObjects := resources.Key("XObject")
	if xObjects.IsNull() || xObjects.Kind() != pdf.Dict {
		return 0
	}

	for _, key := range xObjects.Keys() {
		obj := xObjects.Key(key)
		if obj.IsNull() {
			continue
		}

		subtype := obj.Key("Subtype")
		if subtype.IsNull() || subtype.Name() != "Image" {
			continue
		}

		count++
	}

	return count
}
