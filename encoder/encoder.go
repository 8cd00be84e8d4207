package encoder

import "fmt"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096

	// BytesPerSecond of raw PCM at the capture format.
	BytesPerSecond = SampleRate * Channels * (BitsPerSample / 8)
)

// Encoder assembles one recording artifact from 16-bit mono PCM blocks.
// Bytes is only complete after Close.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// New returns an artifact encoder for the given format ("wav" or "flac")
// along with the file extension it produces.
func New(format string) (Encoder, string, error) {
	switch format {
	case "wav":
		return NewWav(), "wav", nil
	case "flac":
		enc, err := NewFlac()
		if err != nil {
			return nil, "", err
		}
		return enc, "flac", nil
	default:
		return nil, "", fmt.Errorf("unknown artifact format %q (use wav or flac)", format)
	}
}
