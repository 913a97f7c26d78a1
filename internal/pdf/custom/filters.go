package custom

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// FilterDecoder interface for PDF stream filters
type FilterDecoder interface {
	Decode(data []byte, params *Dictionary) ([]byte, error)
	Name() string
}

// FilterRegistry holds the decoders for the lossless filters. Image codecs
// (DCT, JPX, CCITT, JBIG2) are never needed to reach metadata, attachments
// or cross-reference data and are not registered.
var FilterRegistry = map[string]FilterDecoder{
	"FlateDecode":     &FlateDecoder{},
	"ASCIIHexDecode":  &ASCIIHexDecoder{},
	"ASCII85Decode":   &ASCII85Decoder{},
	"LZWDecode":       &LZWDecoder{},
	"RunLengthDecode": &RunLengthDecoder{},
}

// GetFilterDecoder returns a filter decoder by name
func GetFilterDecoder(name string) FilterDecoder {
	return FilterRegistry[name]
}

// DecodeStream applies filters to decode a PDF stream
func DecodeStream(stream *Stream) ([]byte, error) {
	data := stream.Data
	filters := stream.GetFilter()

	if len(filters) == 0 {
		return data, nil
	}

	for i, filterName := range filters {
		decoder := GetFilterDecoder(filterName)
		if decoder == nil {
			return nil, fmt.Errorf("unsupported filter: %s", filterName)
		}

		var params *Dictionary
		switch dp := stream.Dict.Get("DecodeParms").(type) {
		case *Array:
			if pd, ok := dp.Get(i).(*Dictionary); ok {
				params = pd
			}
		case *Dictionary:
			if i == 0 {
				params = dp
			}
		}

		var err error
		data, err = decoder.Decode(data, params)
		if err != nil {
			return nil, fmt.Errorf("failed to decode with %s: %w", filterName, err)
		}
	}

	return data, nil
}

// EncodeFlate compresses data in the zlib format FlateDecode expects
func EncodeFlate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FlateDecoder implements zlib/deflate decompression
type FlateDecoder struct{}

func (f *FlateDecoder) Name() string {
	return "FlateDecode"
}

func (f *FlateDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	decoded, err := inflate(data)
	if err != nil {
		return nil, fmt.Errorf("flate decode error: %w", err)
	}

	if params != nil {
		if predictor := params.GetInt("Predictor"); predictor > 1 {
			decoded, err = f.applyPredictor(decoded, params)
			if err != nil {
				return nil, fmt.Errorf("predictor error: %w", err)
			}
		}
	}

	return decoded, nil
}

// inflate reads a zlib stream, falling back to raw deflate which some
// producers emit without the zlib header.
func inflate(data []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err == nil || (err == io.ErrUnexpectedEOF && len(out) > 0) {
			return out, nil
		}
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

func (f *FlateDecoder) applyPredictor(data []byte, params *Dictionary) ([]byte, error) {
	predictor := params.GetInt("Predictor")
	columns := params.GetInt("Columns")
	bitsPerComponent := params.GetInt("BitsPerComponent")
	colors := params.GetInt("Colors")

	if columns == 0 {
		columns = 1
	}
	if bitsPerComponent == 0 {
		bitsPerComponent = 8
	}
	if colors == 0 {
		colors = 1
	}

	switch predictor {
	case 2: // TIFF Predictor 2
		return f.applyTIFFPredictor(data, int(columns), int(bitsPerComponent), int(colors))
	case 10, 11, 12, 13, 14, 15: // PNG predictors
		return f.applyPNGPredictor(data, int(columns), int(bitsPerComponent), int(colors))
	default:
		return data, nil
	}
}

func (f *FlateDecoder) applyTIFFPredictor(data []byte, columns, bitsPerComponent, colors int) ([]byte, error) {
	if bitsPerComponent != 8 {
		return data, fmt.Errorf("TIFF predictor only supports 8 bits per component")
	}

	bytesPerPixel := colors
	rowSize := columns * bytesPerPixel

	if len(data)%rowSize != 0 {
		return data, fmt.Errorf("data length not multiple of row size")
	}

	result := make([]byte, len(data))
	copy(result, data)

	for row := 0; row < len(data)/rowSize; row++ {
		rowStart := row * rowSize
		for col := 1; col < columns; col++ {
			for c := 0; c < bytesPerPixel; c++ {
				idx := rowStart + col*bytesPerPixel + c
				prevIdx := rowStart + (col-1)*bytesPerPixel + c
				result[idx] = byte(int(result[idx]) + int(result[prevIdx]))
			}
		}
	}

	return result, nil
}

func (f *FlateDecoder) applyPNGPredictor(data []byte, columns, bitsPerComponent, colors int) ([]byte, error) {
	bytesPerPixel := (bitsPerComponent*colors + 7) / 8
	rowSize := (columns*bitsPerComponent*colors + 7) / 8
	totalRowSize := rowSize + 1 // +1 for predictor byte

	if len(data)%totalRowSize != 0 {
		return data, fmt.Errorf("data length not multiple of row size")
	}

	numRows := len(data) / totalRowSize
	result := make([]byte, numRows*rowSize)

	for row := 0; row < numRows; row++ {
		srcStart := row * totalRowSize
		dstStart := row * rowSize
		predictor := data[srcStart]
		copy(result[dstStart:], data[srcStart+1:srcStart+totalRowSize])

		for i := 0; i < rowSize; i++ {
			var left, up, upLeft byte
			if i >= bytesPerPixel {
				left = result[dstStart+i-bytesPerPixel]
			}
			if row > 0 {
				up = result[dstStart-rowSize+i]
				if i >= bytesPerPixel {
					upLeft = result[dstStart-rowSize+i-bytesPerPixel]
				}
			}

			switch predictor {
			case 0: // None
			case 1: // Sub
				result[dstStart+i] += left
			case 2: // Up
				result[dstStart+i] += up
			case 3: // Average
				result[dstStart+i] += byte((int(left) + int(up)) / 2)
			case 4: // Paeth
				result[dstStart+i] += paethPredictor(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown PNG predictor: %d", predictor)
			}
		}
	}

	return result, nil
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ASCIIHexDecoder implements ASCII hex decoding
type ASCIIHexDecoder struct{}

func (a *ASCIIHexDecoder) Name() string {
	return "ASCIIHexDecode"
}

func (a *ASCIIHexDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	var hexStr strings.Builder
	for _, b := range data {
		if b == '>' {
			break // End of data marker
		}
		if _, ok := hexValue(b); ok {
			hexStr.WriteByte(b)
		}
	}

	hexData := hexStr.String()
	if len(hexData)%2 == 1 {
		hexData += "0"
	}

	decoded, err := hex.DecodeString(hexData)
	if err != nil {
		return nil, fmt.Errorf("ASCII hex decode error: %w", err)
	}

	return decoded, nil
}

// ASCII85Decoder implements ASCII85 decoding
type ASCII85Decoder struct{}

func (a *ASCII85Decoder) Name() string {
	return "ASCII85Decode"
}

func (a *ASCII85Decoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	start := 0
	end := len(data)

	if i := bytes.Index(data, []byte("<~")); i >= 0 {
		start = i + 2
	}
	if i := bytes.Index(data[start:], []byte("~>")); i >= 0 {
		end = start + i
	}

	if start >= end {
		return []byte{}, nil
	}

	var clean []byte
	for _, b := range data[start:end] {
		if (b >= '!' && b <= 'u') || b == 'z' {
			clean = append(clean, b)
		}
	}

	var result []byte
	i := 0
	for i < len(clean) {
		if clean[i] == 'z' {
			result = append(result, 0, 0, 0, 0)
			i++
			continue
		}

		var group [5]byte
		n := 0
		for n < 5 && i < len(clean) && clean[i] != 'z' {
			group[n] = clean[i] - '!'
			n++
			i++
		}
		if n == 1 {
			return nil, fmt.Errorf("ASCII85 decode error: dangling byte")
		}
		for j := n; j < 5; j++ {
			group[j] = 84 // 'u' - '!'
		}

		var value uint32
		for _, g := range group {
			value = value*85 + uint32(g)
		}

		out := []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
		result = append(result, out[:n-1]...)
	}

	return result, nil
}

// LZWDecoder implements LZW decompression
type LZWDecoder struct{}

func (l *LZWDecoder) Name() string {
	return "LZWDecode"
}

// Decode uses compress/lzw, which implements the EarlyChange=0 variant only.
func (l *LZWDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer reader.Close()

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("LZW decode error: %w", err)
	}

	return decoded, nil
}

// RunLengthDecoder implements run-length decompression
type RunLengthDecoder struct{}

func (r *RunLengthDecoder) Name() string {
	return "RunLengthDecode"
}

func (r *RunLengthDecoder) Decode(data []byte, params *Dictionary) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var result []byte
	i := 0

	for i < len(data) {
		length := int(data[i])
		i++

		if length == 128 {
			break
		}

		if length < 128 {
			count := length + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("insufficient data for literal run")
			}
			result = append(result, data[i:i+count]...)
			i += count
		} else {
			count := 257 - length
			if i >= len(data) {
				return nil, fmt.Errorf("insufficient data for replicate run")
			}
			result = append(result, bytes.Repeat([]byte{data[i]}, count)...)
			i++
		}
	}

	return result, nil
}
