package indicator

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"golang-backtest/internal/dto"
)

// Fingerprint hashes the bar contents. Equal series share cached indicators
// regardless of which symbol or request they came from.
func Fingerprint(bars []dto.Bar) uint64 {
	h := xxhash.New()
	var buf [48]byte
	for _, b := range bars {
		binary.LittleEndian.PutUint64(buf[0:], uint64(b.Timestamp.UnixNano()))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(b.Open))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(b.High))
		binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(b.Low))
		binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(b.Close))
		binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(b.Volume))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
