package reward

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"PoolKeeper/internal/config"
	"PoolKeeper/internal/model"
)

// ActionFromConfig converts a configured reward action. A nil config means
// redeemed tokens are kept and returns nil.
func ActionFromConfig(c *config.RewardActionConfig) (*model.RewardAction, error) {
	if c == nil {
		return nil, nil
	}
	switch model.ActionKind(strings.ToLower(c.Action)) {
	case model.ActionTransfer:
		if !common.IsHexAddress(c.To) {
			return nil, fmt.Errorf("transfer target %q is not an address", c.To)
		}
		return &model.RewardAction{Kind: model.ActionTransfer, To: common.HexToAddress(c.To)}, nil
	case model.ActionExchange:
		if c.TargetToken == "" {
			return nil, fmt.Errorf("exchange needs a target token")
		}
		return &model.RewardAction{
			Kind:              model.ActionExchange,
			TargetToken:       strings.ToLower(c.TargetToken),
			Slippage:          c.Slippage,
			FeeTier:           c.Fee,
			UseAlternateRoute: c.UseOneInch,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, c.Action)
	}
}
