package catalog

// Arbitrum One token addresses.
const (
	WETH = "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
	USDC = "0xA0b86a33E6441b8435b662303c0f479c0c5c8b3E"
	USDT = "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"
	DAI  = "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"
)

// Venue names.
const (
	VenueUniswapV3 = "uniswap-v3"
	VenueSushiswap = "sushiswap"
	VenueCurve     = "curve"
	VenueBalancer  = "balancer"
)

// Router and registry addresses.
const (
	UniswapV3Router = "0xE592427A0AEce92De3Edee1F18E0157C05861564"
	SushiswapRouter = "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"
	CurveRegistry   = "0x445FE580eF8d70FF569aB36e80c647af338db351"
	BalancerVault   = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
)

// Default returns the built-in Arbitrum catalog.
func Default() *Catalog {
	return New(
		[]Token{
			{Symbol: "WETH", Address: WETH, Decimals: 18, Major: true, Native: true, CurveIndex: 0},
			{Symbol: "USDC", Address: USDC, Decimals: 6, Stable: true, Major: true, CurveIndex: 1},
			{Symbol: "USDT", Address: USDT, Decimals: 6, Stable: true, Major: true, CurveIndex: 2},
			{Symbol: "DAI", Address: DAI, Decimals: 18, Stable: true, CurveIndex: 3},
		},
		[]Venue{
			{Name: VenueUniswapV3, Fee: 0.003, Router: UniswapV3Router},
			{Name: VenueSushiswap, Fee: 0.003, Router: SushiswapRouter},
			{Name: VenueCurve, Fee: 0.0004, Router: CurveRegistry},
			{Name: VenueBalancer, Fee: 0.0025, Router: BalancerVault},
		},
	)
}
