package calldata

const uniswapV3RouterABI = `[{"type":"function","name":"exactInputSingle","stateMutability":"payable",
  "inputs":[{"name":"params","type":"tuple","components":[
    {"name":"tokenIn","type":"address"},
    {"name":"tokenOut","type":"address"},
    {"name":"fee","type":"uint24"},
    {"name":"recipient","type":"address"},
    {"name":"deadline","type":"uint256"},
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMinimum","type":"uint256"},
    {"name":"sqrtPriceLimitX96","type":"uint160"}]}],
  "outputs":[{"name":"amountOut","type":"uint256"}]}]`

const sushiswapRouterABI = `[{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
  "inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}],
  "outputs":[{"name":"amounts","type":"uint256[]"}]}]`

const curvePoolABI = `[{"type":"function","name":"exchange","stateMutability":"nonpayable",
  "inputs":[
    {"name":"i","type":"int128"},
    {"name":"j","type":"int128"},
    {"name":"dx","type":"uint256"},
    {"name":"min_dy","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256"}]}]`

const balancerVaultABI = `[{"type":"function","name":"swap","stateMutability":"payable",
  "inputs":[
    {"name":"singleSwap","type":"tuple","components":[
      {"name":"poolId","type":"bytes32"},
      {"name":"kind","type":"uint8"},
      {"name":"assetIn","type":"address"},
      {"name":"assetOut","type":"address"},
      {"name":"amount","type":"uint256"},
      {"name":"userData","type":"bytes"}]},
    {"name":"funds","type":"tuple","components":[
      {"name":"sender","type":"address"},
      {"name":"fromInternalBalance","type":"bool"},
      {"name":"recipient","type":"address"},
      {"name":"toInternalBalance","type":"bool"}]},
    {"name":"limit","type":"uint256"},
    {"name":"deadline","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256"}]}]`

// ArbitrageContractABI is the entry point of the flash-loan arbitrage contract.
const ArbitrageContractABI = `[{"type":"function","name":"executeArbitrage","stateMutability":"nonpayable",
  "inputs":[{"name":"params","type":"tuple","components":[
    {"name":"tokenIn","type":"address"},
    {"name":"tokenOut","type":"address"},
    {"name":"amountIn","type":"uint256"},
    {"name":"minProfit","type":"uint256"},
    {"name":"dexAddresses","type":"address[]"},
    {"name":"swapCalldata","type":"bytes[]"}]}],
  "outputs":[]}]`
