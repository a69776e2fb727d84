package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/lurch"
)

// Compression selects how a Bytes cache stores its values.
type Compression uint8

const (
	// CompressionNone stores values as given.
	CompressionNone Compression = iota
	// CompressionLZ4 uses LZ4 blocks: fast, for hot values.
	CompressionLZ4
	// CompressionZSTD uses zstd: a better ratio at more CPU per Set.
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

// A compressed block is [raw size u32][packed size u32][data]. Packed size 0
// means the data is stored raw because compressing did not pay off.
const blockHeaderSize = 8

var errShortBlock = errors.New("cache: block too short")

// compressBlock always returns memory it owns.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	if c == CompressionNone {
		return append([]byte(nil), data...), nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: value of %d bytes is too large to compress", lurch.ErrInvalidArgument, len(data))
	}

	var packed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n] // n == 0: incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", lurch.ErrInvalidArgument, c)
	}

	raw := len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9
	if raw {
		packed = data
	}
	out := make([]byte, blockHeaderSize+len(packed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	if !raw {
		binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	}
	copy(out[blockHeaderSize:], packed)
	return out, nil
}

// decompressBlock always returns fresh memory, so callers may modify it.
func decompressBlock(block []byte, c Compression) ([]byte, error) {
	if c == CompressionNone {
		return append([]byte(nil), block...), nil
	}
	if len(block) < blockHeaderSize {
		return nil, errShortBlock
	}
	rawSize := binary.LittleEndian.Uint32(block[0:])
	packedSize := binary.LittleEndian.Uint32(block[4:])
	body := block[blockHeaderSize:]

	if packedSize == 0 {
		if uint32(len(body)) != rawSize {
			return nil, errShortBlock
		}
		return append([]byte(nil), body...), nil
	}
	if uint32(len(body)) != packedSize {
		return nil, errShortBlock
	}

	out := make([]byte, rawSize)
	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != rawSize {
			return nil, errors.New("cache: decompressed size mismatch")
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != rawSize {
			return nil, errors.New("cache: decompressed size mismatch")
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", lurch.ErrInvalidArgument, c)
	}
}
