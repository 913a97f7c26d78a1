package custom

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFilterRegistry(t *testing.T) {
	expectedFilters := []string{
		"FlateDecode",
		"ASCIIHexDecode",
		"ASCII85Decode",
		"LZWDecode",
		"RunLengthDecode",
	}

	for _, filterName := range expectedFilters {
		decoder := GetFilterDecoder(filterName)
		assert.NotNil(t, decoder, "Filter %s should be registered", filterName)
		assert.Equal(t, filterName, decoder.Name(), "Filter name should match")
	}

	assert.Nil(t, GetFilterDecoder("DCTDecode"))
	assert.Nil(t, GetFilterDecoder("NonExistentFilter"))
}

func TestFlateDecoder(t *testing.T) {
	decoder := &FlateDecoder{}
	original := []byte("Hello, World! This is a test of the FlateDecode filter.")

	t.Run("ZlibStream", func(t *testing.T) {
		decoded, err := decoder.Decode(zlibCompress(t, original), nil)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("RawDeflate", func(t *testing.T) {
		var compressed bytes.Buffer
		writer, err := flate.NewWriter(&compressed, flate.DefaultCompression)
		require.NoError(t, err)
		_, err = writer.Write(original)
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		decoded, err := decoder.Decode(compressed.Bytes(), nil)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("EmptyData", func(t *testing.T) {
		decoded, err := decoder.Decode([]byte{}, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{}, decoded)
	})

	t.Run("PNGUpPredictor", func(t *testing.T) {
		params := NewDictionary()
		params.Set("Predictor", Int(12))
		params.Set("Columns", Int(3))

		// two rows of xref-stream style entries, second row encoded as "Up"
		raw := []byte{
			2, 1, 0, 10,
			2, 0, 0, 5,
		}
		decoded, err := decoder.Decode(zlibCompress(t, raw), params)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 0, 10, 1, 0, 15}, decoded)
	})

	t.Run("PNGRowMismatch", func(t *testing.T) {
		params := NewDictionary()
		params.Set("Predictor", Int(12))
		params.Set("Columns", Int(4))

		_, err := decoder.Decode(zlibCompress(t, []byte{0, 1, 2}), params)
		assert.Error(t, err)
	})
}

func TestEncodeFlate(t *testing.T) {
	original := bytes.Repeat([]byte("<rsm:CrossIndustryInvoice/>"), 20)

	encoded, err := EncodeFlate(original)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(original))

	decoded, err := (&FlateDecoder{}).Decode(encoded, nil)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestASCIIHexDecoder(t *testing.T) {
	decoder := &ASCIIHexDecoder{}

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"basic", "48656C6C6F>", []byte("Hello")},
		{"whitespace", "48 65 6C 6C 6F>", []byte("Hello")},
		{"odd length pads with zero", "48656C6C6>", []byte("Hell`")},
		{"empty", "", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := decoder.Decode([]byte(tt.input), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decoded)
		})
	}
}

func TestASCII85Decoder(t *testing.T) {
	decoder := &ASCII85Decoder{}

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"basic", "<~87cURD]~>", []byte("Hello")},
		{"zero group", "<~z~>", []byte{0, 0, 0, 0}},
		{"without markers", "87cURD]", []byte("Hello")},
		{"empty", "", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := decoder.Decode([]byte(tt.input), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decoded)
		})
	}
}

func TestRunLengthDecoder(t *testing.T) {
	decoder := &RunLengthDecoder{}

	t.Run("LiteralRun", func(t *testing.T) {
		decoded, err := decoder.Decode([]byte{4, 'H', 'e', 'l', 'l', 'o', 128}, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("Hello"), decoded)
	})

	t.Run("MixedRuns", func(t *testing.T) {
		decoded, err := decoder.Decode([]byte{1, 'H', 'i', 254, '!', 128}, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("Hi!!!"), decoded)
	})

	t.Run("InvalidData", func(t *testing.T) {
		_, err := decoder.Decode([]byte{5, 'H', 'i'}, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient data")
	})
}

func TestDecodeStream(t *testing.T) {
	t.Run("NoFilters", func(t *testing.T) {
		stream := &Stream{Dict: NewDictionary(), Data: []byte("Hello, World!")}

		decoded, err := DecodeStream(stream)
		require.NoError(t, err)
		assert.Equal(t, stream.Data, decoded)
	})

	t.Run("UnsupportedFilter", func(t *testing.T) {
		dict := NewDictionary()
		dict.Set("Filter", &Name{Value: "JBIG2Decode"})

		_, err := DecodeStream(&Stream{Dict: dict, Data: []byte("test data")})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported filter")
	})

	t.Run("ChainWithParams", func(t *testing.T) {
		original := []byte("This is test data for PDF filter integration testing")
		hexEncoded := hex.EncodeToString(zlibCompress(t, original)) + ">"

		dict := NewDictionary()
		dict.Set("Filter", NewArray(&Name{Value: "ASCIIHexDecode"}, &Name{Value: "FlateDecode"}))
		dict.Set("DecodeParms", NewArray(&Null{}, NewDictionary().Set("Predictor", Int(1))))

		decoded, err := DecodeStream(&Stream{Dict: dict, Data: []byte(hexEncoded)})
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("HexThenRunLength", func(t *testing.T) {
		dict := NewDictionary()
		dict.Set("Filter", NewArray(&Name{Value: "ASCIIHexDecode"}, &Name{Value: "RunLengthDecode"}))

		data := hex.EncodeToString([]byte{252, 'A', 128}) + ">"
		decoded, err := DecodeStream(&Stream{Dict: dict, Data: []byte(data)})
		require.NoError(t, err)
		assert.Equal(t, []byte("AAAAA"), decoded)
	})
}
