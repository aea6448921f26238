package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLookupsIgnoreCase(t *testing.T) {
	c := Default()
	assert.True(t, c.IsNative(strings.ToLower(WETH)))
	assert.False(t, c.IsStable("0xunknown"))
	assert.True(t, c.IsStable(USDC))
	assert.True(t, c.IsMajor(USDT))
	assert.False(t, c.IsMajor(DAI))
	assert.Equal(t, int32(6), c.Decimals(USDC))
	assert.Equal(t, int32(18), c.Decimals("0xunknown"))

	idx, ok := c.CurveIndex(DAI)
	assert.True(t, ok)
	assert.Equal(t, 3, idx)

	r, ok := c.Router(VenueBalancer)
	assert.True(t, ok)
	assert.Equal(t, BalancerVault, r)

	assert.InDelta(t, 0.0004, c.VenueFees()[VenueCurve], 1e-12)
	assert.Len(t, c.Venues(), 4)
	assert.Equal(t, VenueUniswapV3, c.Venues()[0].Name)
}

func TestLoadFileMergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	body := `
tokens:
  - symbol: ARB
    address: "0x912CE59144191C1204E64559FE8253a0e49E6548"
    major: false
venues:
  - name: sushiswap
    fee: 0.0025
    router: "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"
    pools:
      - address: "0x0000000000000000000000000000000000000001"
        token_a: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
        token_b: "0x912CE59144191C1204E64559FE8253a0e49E6548"
        kind: v2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	arb, ok := c.TokenBySymbol("arb")
	require.True(t, ok)
	assert.Equal(t, int32(18), arb.Decimals)
	_, ok = c.CurveIndex(arb.Address)
	assert.False(t, ok)
	assert.True(t, c.IsNative(WETH))

	v, ok := c.Venue(VenueSushiswap)
	require.True(t, ok)
	assert.InDelta(t, 0.0025, v.Fee, 1e-12)
	assert.Len(t, v.Pools, 1)
	assert.Len(t, c.Venues(), 4)
}

func TestLoadFileRejectsMissingAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens:\n  - symbol: X\n"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}
