// Package document encodes document pages for the persistence stores.
//
// A page is one stored document plus its insertion sequence number. On disk
// it is a one-byte compression tag followed by the (possibly compressed)
// JSON body.
package document

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/kailas-cloud/docdex/internal/catalog"
	storepkg "github.com/kailas-cloud/docdex/internal/store"
)

// Compression selects the page compression algorithm.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

// ParseCompression maps a config value to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return "none"
}

// minCompressSize is the body size below which pages are stored raw.
const minCompressSize = 64

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

type pageRow struct {
	Seq    uint32     `json:"seq"`
	Fields []fieldRow `json:"doc"`
}

// Codec serializes pages.
type Codec struct {
	compression Compression
}

// NewCodec creates a page codec writing with the given compression.
// Decoding accepts every compression regardless of the setting.
func NewCodec(c Compression) Codec {
	return Codec{compression: c}
}

// Encode serializes a page.
func (c Codec) Encode(p catalog.Page) ([]byte, error) {
	if p.Doc == nil {
		return nil, errors.New("page has no document")
	}
	body, err := json.Marshal(pageRow{Seq: uint32(p.Seq), Fields: docToRows(p.Doc)})
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}
	return compress(body, c.compression)
}

// Decode parses a page written by Encode.
func (c Codec) Decode(data []byte) (catalog.Page, error) {
	body, err := decompress(data)
	if err != nil {
		return catalog.Page{}, err
	}
	var row pageRow
	if err := json.Unmarshal(body, &row); err != nil {
		return catalog.Page{}, fmt.Errorf("unmarshal page: %w", err)
	}
	d, err := rowsToDoc(row.Fields)
	if err != nil {
		return catalog.Page{}, err
	}
	return catalog.Page{Seq: storepkg.RowID(row.Seq), Doc: d}, nil
}

func compress(body []byte, c Compression) ([]byte, error) {
	if len(body) < minCompressSize {
		c = CompressionNone
	}
	switch c {
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(body, []byte{byte(CompressionZSTD)}), nil
	case CompressionLZ4:
		buf := make([]byte, 1+4+lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, buf[5:], nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// incompressible
			return compress(body, CompressionNone)
		}
		buf[0] = byte(CompressionLZ4)
		binary.LittleEndian.PutUint32(buf[1:], uint32(len(body)))
		return buf[:5+n], nil
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(CompressionNone)
	copy(out[1:], body)
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty page")
	}
	switch Compression(data[0]) {
	case CompressionNone:
		return data[1:], nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		if len(data) < 5 {
			return nil, errors.New("lz4 page too small for header")
		}
		size := binary.LittleEndian.Uint32(data[1:])
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data[5:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint32(n) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown page compression %d", data[0])
}
