package chain

import (
	"context"
	"log/slog"

	"PoolKeeper/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// LoadPools binds every configured pool, reading pool metadata concurrently.
// The result keeps configuration order.
func LoadPools(ctx context.Context, signer *Signer, tokens *ERC20, utils *PoolInfoUtils, pools []config.PoolConfig, logger *slog.Logger) ([]*Pool, error) {
	out := make([]*Pool, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pc := range pools {
		g.Go(func() error {
			p, err := NewPool(gctx, signer, tokens, utils, pc.Name, common.HexToAddress(pc.Address))
			if err != nil {
				return err
			}
			logger.Info("loaded pool",
				"pool", pc.Name,
				"address", p.address.Hex(),
				"quote", p.quote.Hex(),
				"collateral", p.collateral.Hex())
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
