package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const poolABIJSON = `[
{"type":"function","name":"quoteTokenAddress","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"collateralAddress","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"inflatorInfo","stateMutability":"view","inputs":[],"outputs":[{"name":"inflator","type":"uint256"},{"name":"lastUpdate","type":"uint256"}]},
{"type":"function","name":"kickerInfo","stateMutability":"view","inputs":[{"name":"kicker","type":"address"}],"outputs":[{"name":"claimable","type":"uint256"},{"name":"locked","type":"uint256"}]},
{"type":"function","name":"lenderInfo","stateMutability":"view","inputs":[{"name":"index","type":"uint256"},{"name":"lender","type":"address"}],"outputs":[{"name":"lpBalance","type":"uint256"},{"name":"depositTime","type":"uint256"}]},
{"type":"function","name":"kick","stateMutability":"nonpayable","inputs":[{"name":"borrower","type":"address"},{"name":"npLimitIndex","type":"uint256"}],"outputs":[]},
{"type":"function","name":"bucketTake","stateMutability":"nonpayable","inputs":[{"name":"borrower","type":"address"},{"name":"depositTake","type":"bool"},{"name":"index","type":"uint256"}],"outputs":[]},
{"type":"function","name":"debtInfo","stateMutability":"view","inputs":[],"outputs":[{"name":"debt","type":"uint256"},{"name":"accruedDebt","type":"uint256"},{"name":"debtInAuction","type":"uint256"},{"name":"t0Debt2ToCollateral","type":"uint256"}]},
{"type":"function","name":"depositUpToIndex","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"removeQuoteToken","stateMutability":"nonpayable","inputs":[{"name":"maxAmount","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"removedAmount","type":"uint256"},{"name":"redeemedLP","type":"uint256"}]},
{"type":"function","name":"removeCollateral","stateMutability":"nonpayable","inputs":[{"name":"maxAmount","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"removedAmount","type":"uint256"},{"name":"redeemedLP","type":"uint256"}]},
{"type":"function","name":"withdrawBonds","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"maxAmount","type":"uint256"}],"outputs":[]},
{"type":"event","name":"BucketTakeLPAwarded","anonymous":false,"inputs":[{"name":"taker","type":"address","indexed":true},{"name":"kicker","type":"address","indexed":true},{"name":"lpAwardedTaker","type":"uint256","indexed":false},{"name":"lpAwardedKicker","type":"uint256","indexed":false}]}
]`

const poolInfoUtilsABIJSON = `[
{"type":"function","name":"borrowerInfo","stateMutability":"view","inputs":[{"name":"pool","type":"address"},{"name":"borrower","type":"address"}],"outputs":[{"name":"debt","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"t0Np","type":"uint256"},{"name":"thresholdPrice","type":"uint256"}]},
{"type":"function","name":"poolPricesInfo","stateMutability":"view","inputs":[{"name":"pool","type":"address"}],"outputs":[{"name":"hpb","type":"uint256"},{"name":"hpbIndex","type":"uint256"},{"name":"htp","type":"uint256"},{"name":"htpIndex","type":"uint256"},{"name":"lup","type":"uint256"},{"name":"lupIndex","type":"uint256"}]},
{"type":"function","name":"bucketInfo","stateMutability":"view","inputs":[{"name":"pool","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"price","type":"uint256"},{"name":"quoteTokens","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"bucketLP","type":"uint256"},{"name":"scale","type":"uint256"},{"name":"exchangeRate","type":"uint256"}]},
{"type":"function","name":"auctionStatus","stateMutability":"view","inputs":[{"name":"pool","type":"address"},{"name":"borrower","type":"address"}],"outputs":[{"name":"kickTime","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"debtToCover","type":"uint256"},{"name":"isCollateralized","type":"bool"},{"name":"price","type":"uint256"},{"name":"neutralPrice","type":"uint256"},{"name":"referencePrice","type":"uint256"},{"name":"debtToCollateral","type":"uint256"},{"name":"bondFactor","type":"uint256"}]},
{"type":"function","name":"lpToQuoteTokens","stateMutability":"view","inputs":[{"name":"pool","type":"address"},{"name":"lp","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"lpToCollateral","stateMutability":"view","inputs":[{"name":"pool","type":"address"},{"name":"lp","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const swapRouterABIJSON = `[
{"type":"function","name":"exactInputSingle","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const quoterABIJSON = `[
{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"fee","type":"uint24"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},{"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}]}
]`

var (
	erc20ABI         = mustParseABI(erc20ABIJSON)
	poolABI          = mustParseABI(poolABIJSON)
	poolInfoUtilsABI = mustParseABI(poolInfoUtilsABIJSON)
	swapRouterABI    = mustParseABI(swapRouterABIJSON)
	quoterABI        = mustParseABI(quoterABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
