package cmd

import (
	"testing"

	"github.com/mselser95/gridbot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloats(t *testing.T) {
	got, err := parseFloats("100", "110.5", "1e3")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 110.5, 1000}, got)

	_, err = parseFloats("100", "abc")
	assert.ErrorContains(t, err, `invalid number "abc"`)
}

func TestParseOrderID(t *testing.T) {
	tests := []struct {
		arg     string
		want    int64
		wantErr bool
	}{
		{arg: "2001", want: 2001},
		{arg: "0", wantErr: true},
		{arg: "-5", wantErr: true},
		{arg: "pair-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseOrderID(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"run"},
		{"pair", "create"},
		{"pair", "list"},
		{"pair", "modify-buy"},
		{"pair", "modify-sell"},
		{"pair", "cancel"},
		{"position", "list"},
		{"position", "modify-sell"},
		{"position", "close"},
		{"orders", "list"},
		{"orders", "cancel"},
		{"history"},
		{"balance"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
}

func TestSelectOrders(t *testing.T) {
	orders := []types.Order{{ID: 1}, {ID: 2}, {ID: 3}}

	got := selectOrders(orders, []int64{3, 1, 9})

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}
