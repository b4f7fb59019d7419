package reward

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const avalancheChainID = 43114

// avalancheTokens are the swap targets known by name on Avalanche.
var avalancheTokens = map[string]common.Address{
	"avax": common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"),
	"usdc": common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
	"weth": common.HexToAddress("0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB"), // WETH.e
}

// ResolveRoute returns the address to swap into for targetToken. Named
// tokens are looked up in the chain table first; otherwise override is used.
func ResolveRoute(chainID int64, targetToken string, override common.Address) (common.Address, error) {
	if chainID == avalancheChainID {
		if addr, ok := avalancheTokens[strings.ToLower(targetToken)]; ok {
			return addr, nil
		}
	}
	if override != (common.Address{}) {
		return override, nil
	}
	return common.Address{}, fmt.Errorf("%w: token %q on chain %d", ErrNoRoute, targetToken, chainID)
}
