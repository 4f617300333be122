package hashrate

import (
	"math"
	"math/big"

	"github.com/camarigor/pool-archiver/internal/snapshot"
)

// The canonical unit is difficulty-1 shares per second: the pool's reported
// hashes-per-second figure scaled by 2^32. 128 bits of precision keeps the
// product exact for every float64 input.
const floatPrec = 128

var scale = new(big.Float).SetPrec(floatPrec).SetInt64(1 << 32)

// Normalize converts a pool-reported hashrate into the canonical integer
// unit, rounding half away from zero. NaN, infinities and negative values
// clamp to zero; a single bad field must not abort a run.
func Normalize(v float64) *big.Int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return new(big.Int)
	}
	f := new(big.Float).SetPrec(floatPrec).SetFloat64(v)
	f.Mul(f, scale)
	f.Add(f, new(big.Float).SetPrec(floatPrec).SetFloat64(0.5))
	// v is positive, so truncation after the +0.5 rounds half away from zero.
	n, _ := f.Int(nil)
	return n
}

// Canonical holds one normalized value per reporting window.
type Canonical struct {
	Hashrate1m  *big.Int
	Hashrate5m  *big.Int
	Hashrate15m *big.Int
	Hashrate1hr *big.Int
	Hashrate6hr *big.Int
	Hashrate1d  *big.Int
	Hashrate7d  *big.Int
}

// NormalizeRates converts a full set of reported windows. A nil set (absent
// in the document) normalizes to all zeroes.
func NormalizeRates(r *snapshot.Rates) Canonical {
	if r == nil {
		r = &snapshot.Rates{}
	}
	return Canonical{
		Hashrate1m:  Normalize(r.Hashrate1m),
		Hashrate5m:  Normalize(r.Hashrate5m),
		Hashrate15m: Normalize(r.Hashrate15m),
		Hashrate1hr: Normalize(r.Hashrate1hr),
		Hashrate6hr: Normalize(r.Hashrate6hr),
		Hashrate1d:  Normalize(r.Hashrate1d),
		Hashrate7d:  Normalize(r.Hashrate7d),
	}
}

// ResolvePoolRates picks the rate set for the pool-wide rollup row. The
// upstream pool does not always populate the top-level aggregate, so fall
// back to the first user's rollup, then that user's first worker, then zero.
// "First" means document order.
func ResolvePoolRates(snap *snapshot.Snapshot) *snapshot.Rates {
	if snap.Rates != nil {
		return snap.Rates
	}
	if len(snap.Users) > 0 {
		first := snap.Users[0]
		if first.Rates != nil {
			return first.Rates
		}
		if len(first.Workers) > 0 && first.Workers[0].Rates != nil {
			return first.Workers[0].Rates
		}
	}
	return &snapshot.Rates{}
}
