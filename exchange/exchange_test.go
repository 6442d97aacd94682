package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Kind
		wantErr bool
	}{
		{name: "short binance", in: "binance", want: Binance},
		{name: "long binance", in: "Binance Perpetual Futures", want: Binance},
		{name: "bybit usdt", in: "Bybit USDT Perpetual", want: Bybit},
		{name: "ftx futures", in: "FTX Futures", want: Ftx},
		{name: "empty", in: "  ", wantErr: true},
		{name: "unknown", in: "kraken", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "binance", Binance.String())
	assert.Equal(t, "ftx", Ftx.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
	assert.True(t, Ftx.Continuous())
	assert.False(t, Bybit.Continuous())
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"BTC-USDT":  "BTC-USDT",
		"btc-usd":   "BTC-USDT",
		"ETH-PERP":  "ETH-USDT",
		"BCO-USDT":  "BTC-USDT",
		" sol-usd ": "SOL-USDT",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestVenueSymbol(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BTCUSDT", VenueSymbol(Binance, "BTC-USDT"))
	assert.Equal(t, "ETHUSDT", VenueSymbol(Bybit, "ETH-PERP"))
	assert.Equal(t, "BTC-PERP", VenueSymbol(Ftx, "BTC-USD"))
	assert.Equal(t, "BTC", Base("BCO-USDT"))
}
