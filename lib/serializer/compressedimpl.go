package serializer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Block format: [algo uint8][uncompressed size uint32][data...]
// algo is blockStored if compression did not help.
const (
	blockStored uint8 = 0
	blockLZ4    uint8 = 1
	blockZSTD   uint8 = 2

	blockHeaderSize = 5
	maxBlockSize    = 1 << 30

	// lz4MaxRatio bounds the expansion of an lz4 block
	lz4MaxRatio = 255
)

var errCorruptBlock = errors.New("corrupt compressed block")

// --------------------------------------------------------------------------
// ZSTD coder pools
// --------------------------------------------------------------------------

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
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBlockSize))
	return dec
}

// --------------------------------------------------------------------------
// Compressed serializer
// --------------------------------------------------------------------------

// NewCompressedSerializer wraps inner so that every serialized unit is compressed
// with the given algorithm (CompressionZSTD or CompressionLZ4).
func NewCompressedSerializer(inner ISerializer, algorithm string) (ISerializer, error) {
	if inner == nil {
		return nil, errors.New("compressed serializer needs an inner serializer")
	}

	var algo uint8
	switch algorithm {
	case CompressionZSTD:
		algo = blockZSTD
	case CompressionLZ4:
		algo = blockLZ4
	default:
		return nil, fmt.Errorf("unknown compression %q (supported: %s, %s)", algorithm, CompressionZSTD, CompressionLZ4)
	}

	return &compressedSerializerImpl{
		inner:     inner,
		algo:      algo,
		algorithm: algorithm,
	}, nil
}

// compressedSerializerImpl implements the ISerializer interface by compressing
// the output of another serializer
type compressedSerializerImpl struct {
	inner     ISerializer
	algo      uint8
	algorithm string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (c *compressedSerializerImpl) Serialize(v any) ([]byte, error) {
	raw, err := c.inner.Serialize(v)
	if err != nil {
		return nil, err
	}
	return compressBlock(raw, c.algo)
}

func (c *compressedSerializerImpl) Deserialize(b []byte, v any) error {
	raw, err := decompressBlock(b)
	if err != nil {
		return err
	}
	return c.inner.Deserialize(raw, v)
}

func (c *compressedSerializerImpl) Name() string {
	return c.inner.Name() + "+" + c.algorithm
}

// --------------------------------------------------------------------------
// Block helpers
// --------------------------------------------------------------------------

// compressBlock compresses data and prepends the block header.
// If compression does not help the data is stored as is.
func compressBlock(data []byte, algo uint8) ([]byte, error) {
	if len(data) > maxBlockSize {
		return nil, fmt.Errorf("unit of %d bytes exceeds the compression limit", len(data))
	}

	var compressed []byte
	switch algo {
	case blockLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case blockZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(compressed) == 0 || len(compressed) >= len(data) {
		algo = blockStored
		compressed = data
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	result[0] = algo
	binary.LittleEndian.PutUint32(result[1:], uint32(len(data)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

// decompressBlock reverses compressBlock
func decompressBlock(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, errCorruptBlock
	}

	algo := data[0]
	size := binary.LittleEndian.Uint32(data[1:])
	payload := data[blockHeaderSize:]

	if size > maxBlockSize {
		return nil, errCorruptBlock
	}

	switch algo {
	case blockStored:
		if uint32(len(payload)) != size {
			return nil, errCorruptBlock
		}
		return payload, nil

	case blockLZ4:
		// the header is checked against the payload before anything is allocated
		if uint64(size) > uint64(len(payload))*lz4MaxRatio {
			return nil, fmt.Errorf("%w: size %d does not fit a payload of %d bytes", errCorruptBlock, size, len(payload))
		}
		result := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if uint32(n) != size {
			return nil, errCorruptBlock
		}
		return result, nil

	case blockZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
		}
		if uint32(len(decoded)) != size {
			return nil, errCorruptBlock
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", errCorruptBlock, algo)
	}
}
