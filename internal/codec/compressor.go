package codec

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compressor упаковывает бинарные записи чанков перед записью в хранилище.
//
// rawCompressor хранит запись как есть (RLE уже дает основное сжатие),
// zstdCompressor дополнительно сжимает её кадром zstd.
type Compressor interface {
	Name() string
	Compress(record []byte) ([]byte, error)
	Decompress(payload []byte) ([]byte, error)
}

const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

type rawCompressor struct{}

func NewRawCompressor() Compressor { return rawCompressor{} }

func (rawCompressor) Name() string { return CompressionNone }

func (rawCompressor) Compress(record []byte) ([]byte, error) {
	out := make([]byte, len(record))
	copy(out, record)
	return out, nil
}

func (rawCompressor) Decompress(payload []byte) ([]byte, error) {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// zstdCompressor использует EncodeAll/DecodeAll, которые безопасны
// для одновременного вызова из нескольких горутин
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor создаёт zstd-компрессор
func NewZstdCompressor() (Compressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (z *zstdCompressor) Name() string { return CompressionZstd }

func (z *zstdCompressor) Compress(record []byte) ([]byte, error) {
	return z.enc.EncodeAll(record, make([]byte, 0, len(record))), nil
}

func (z *zstdCompressor) Decompress(payload []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrInvalidData, err)
	}
	return out, nil
}

// CompressorByName возвращает компрессор по имени из конфигурации
func CompressorByName(name string) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CompressionNone:
		return NewRawCompressor(), nil
	case CompressionZstd:
		return NewZstdCompressor()
	default:
		return nil, fmt.Errorf("unknown compression %q (expected %s or %s)", name, CompressionNone, CompressionZstd)
	}
}
