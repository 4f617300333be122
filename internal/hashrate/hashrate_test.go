package hashrate

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camarigor/pool-archiver/internal/snapshot"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want string
	}{
		{"zero", 0, "0"},
		{"one", 1, "4294967296"},
		{"two point five", 2.5, "10737418240"},
		{"half rounds away from zero", 0.5 / 4294967296.0, "1"},
		{"below half rounds down", 0.4 / 4294967296.0, "0"},
		{"petahash scale", 1e15, "4294967296000000000000000"},
		{"negative clamps", -3.5, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in).String())
		})
	}
}

func TestNormalizeNonFinite(t *testing.T) {
	assert.Equal(t, "0", Normalize(math.NaN()).String())
	assert.Equal(t, "0", Normalize(math.Inf(1)).String())
	assert.Equal(t, "0", Normalize(math.Inf(-1)).String())
}

func TestNormalizeDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := 123456.789 * float64(i+1)
		first := Normalize(v)
		assert.Zero(t, first.Cmp(Normalize(v)))
	}
}

func TestNormalizeExactForLargeValues(t *testing.T) {
	// 2^40 hashes/sec scales to exactly 2^72.
	want := new(big.Int).Lsh(big.NewInt(1), 72)
	got := Normalize(math.Pow(2, 40))
	assert.Zero(t, want.Cmp(got))
}

func TestNormalizeRatesNil(t *testing.T) {
	c := NormalizeRates(nil)
	assert.Equal(t, "0", c.Hashrate1m.String())
	assert.Equal(t, "0", c.Hashrate7d.String())
}

func TestNormalizeRatesAllWindows(t *testing.T) {
	c := NormalizeRates(&snapshot.Rates{
		Hashrate1m:  1,
		Hashrate5m:  2,
		Hashrate15m: 3,
		Hashrate1hr: 4,
		Hashrate6hr: 5,
		Hashrate1d:  6,
		Hashrate7d:  7,
	})
	assert.Equal(t, "4294967296", c.Hashrate1m.String())
	assert.Equal(t, "8589934592", c.Hashrate5m.String())
	assert.Equal(t, "12884901888", c.Hashrate15m.String())
	assert.Equal(t, "17179869184", c.Hashrate1hr.String())
	assert.Equal(t, "21474836480", c.Hashrate6hr.String())
	assert.Equal(t, "25769803776", c.Hashrate1d.String())
	assert.Equal(t, "30064771072", c.Hashrate7d.String())
}

func TestResolvePoolRatesPrefersDocumentRollup(t *testing.T) {
	snap := &snapshot.Snapshot{
		Rates: &snapshot.Rates{Hashrate1d: 10},
		Users: snapshot.UserList{{
			Address: "a",
			Rates:   &snapshot.Rates{Hashrate1d: 20},
		}},
	}
	r := ResolvePoolRates(snap)
	require.NotNil(t, r)
	assert.Equal(t, float64(10), r.Hashrate1d)
}

func TestResolvePoolRatesFallsBackToFirstUser(t *testing.T) {
	snap := &snapshot.Snapshot{
		Users: snapshot.UserList{
			{Address: "a", Rates: &snapshot.Rates{Hashrate1d: 20}},
			{Address: "b", Rates: &snapshot.Rates{Hashrate1d: 99}},
		},
	}
	assert.Equal(t, float64(20), ResolvePoolRates(snap).Hashrate1d)
}

func TestResolvePoolRatesFallsBackToFirstWorker(t *testing.T) {
	snap := &snapshot.Snapshot{
		Users: snapshot.UserList{{
			Address: "a",
			Workers: snapshot.WorkerList{
				{Name: "rig1", Rates: &snapshot.Rates{Hashrate1d: 2.5}},
				{Name: "rig2", Rates: &snapshot.Rates{Hashrate1d: 7}},
			},
		}},
	}
	r := ResolvePoolRates(snap)
	assert.Equal(t, 2.5, r.Hashrate1d)
	// And scaled through Normalize it matches the canonical unit.
	assert.Equal(t, "10737418240", Normalize(r.Hashrate1d).String())
}

func TestResolvePoolRatesAllMissing(t *testing.T) {
	r := ResolvePoolRates(&snapshot.Snapshot{})
	require.NotNil(t, r)
	assert.Zero(t, r.Hashrate1d)

	r = ResolvePoolRates(&snapshot.Snapshot{
		Users: snapshot.UserList{{Address: "a", Workers: snapshot.WorkerList{{Name: "w"}}}},
	})
	require.NotNil(t, r)
	assert.Zero(t, r.Hashrate1d)
}
