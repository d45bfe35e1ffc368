package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "12.50", want: 1250},
		{in: "0.01", want: 1},
		{in: "7", want: 700},
		{in: "-3.2", want: -320},
		{in: "0.001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "1e30", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FromFloat(f)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	a, err := FromFloat(0.1 + 0.2)
	assert.Error(t, err, "0.30000000000000004 carries sub-cent noise")
	assert.Zero(t, a)

	a, err = FromFloat(19.99)
	require.NoError(t, err)
	assert.Equal(t, Amount(1999), a)
}

func TestStringAndJSON(t *testing.T) {
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "100.00", Units(100).String())

	data, err := json.Marshal(struct {
		Bet Amount `json:"bet"`
	}{Bet: Cents(1999)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bet":19.99}`, string(data))

	var in struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1.5,"b":"2.25"}`), &in))
	assert.Equal(t, Amount(150), in.A)
	assert.Equal(t, Amount(225), in.B)
}

func TestRate(t *testing.T) {
	r, err := RateFromPercent(10)
	require.NoError(t, err)
	assert.Equal(t, Rate(1000), r)
	assert.InDelta(t, 10.0, r.Percent(), 1e-9)

	kept, taken := r.Split(Cents(1005))
	assert.Equal(t, Amount(904), kept) // floor(904.5)
	assert.Equal(t, Amount(101), taken)
	assert.Equal(t, Cents(1005), kept+taken)

	_, err = RateFromPercent(101)
	assert.Error(t, err)
	_, err = RateFromPercent(0.001)
	assert.Error(t, err)
}

func TestMulDivLarge(t *testing.T) {
	a := Amount(math.MaxInt64 / 2)
	assert.Equal(t, a, MulDiv(a, 3, 3))
}
