package cache

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func getEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder
}

func getDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// compress encodes b with zstd before it is written to either cache layer.
func compress(b []byte) []byte {
	return getEncoder().EncodeAll(b, make([]byte, 0, len(b)))
}

// decompress reverses compress. Results payloads are small (one page of
// search results), so DecodeAll's in-memory limit is never a concern here.
func decompress(b []byte) ([]byte, error) {
	return getDecoder().DecodeAll(b, nil)
}
