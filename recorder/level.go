package recorder

import (
	"encoding/binary"
	"sync"
)

const (
	levelBins        = 32
	levelWindowBytes = 4096 // ~128ms of recent PCM at 16kHz mono
	levelPlaceholder = 0.05
)

// levelAnalyzer keeps the most recent slice of capture PCM and derives a
// coarse magnitude spectrum from it. Magnitudes live in the 0-255 domain;
// the published level is their mean divided by 255, so it always lands in
// [0,1].
type levelAnalyzer struct {
	mu     sync.Mutex
	window []byte
}

func (a *levelAnalyzer) Feed(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = append(a.window, pcm...)
	if over := len(a.window) - levelWindowBytes; over > 0 {
		a.window = a.window[over:]
	}
}

func (a *levelAnalyzer) Reset() {
	a.mu.Lock()
	a.window = nil
	a.mu.Unlock()
}

// Magnitudes returns per-bin mean amplitudes scaled to 0-255. Nil when no
// audio has arrived yet.
func (a *levelAnalyzer) Magnitudes() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := len(a.window) / 2
	if samples == 0 {
		return nil
	}
	binSize := samples / levelBins
	if binSize == 0 {
		binSize = 1
	}

	var bins []byte
	for start := 0; start+binSize <= samples && len(bins) < levelBins; start += binSize {
		var sum float64
		for i := start; i < start+binSize; i++ {
			s := int32(int16(binary.LittleEndian.Uint16(a.window[i*2:])))
			if s < 0 {
				s = -s
			}
			sum += float64(s)
		}
		mag := sum / float64(binSize) / 32768 * 255
		if mag > 255 {
			mag = 255
		}
		bins = append(bins, byte(mag))
	}
	return bins
}

// Level is the normalized loudness scalar. A sampling interval with no
// window yet returns a low synthetic placeholder instead of failing.
func (a *levelAnalyzer) Level() float64 {
	mags := a.Magnitudes()
	if len(mags) == 0 {
		return levelPlaceholder
	}
	var sum float64
	for _, m := range mags {
		sum += float64(m)
	}
	return sum / float64(len(mags)) / 255
}
