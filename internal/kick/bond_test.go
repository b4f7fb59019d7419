package kick

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"PoolKeeper/internal/model"
	"PoolKeeper/internal/recorder"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeBondPool struct {
	info        model.KickerInfo
	withdrawErr error
	withdrawals []common.Address
}

func (p *fakeBondPool) Info() model.PoolInfo {
	return model.PoolInfo{Name: "WETH/DAI", Address: testPool}
}

func (p *fakeBondPool) KickerInfo(context.Context, common.Address) (model.KickerInfo, error) {
	return p.info, nil
}

func (p *fakeBondPool) WithdrawBonds(_ context.Context, recipient common.Address) error {
	if p.withdrawErr != nil {
		return p.withdrawErr
	}
	p.withdrawals = append(p.withdrawals, recipient)
	return nil
}

func TestBondCollector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		info      model.KickerInfo
		dryRun    bool
		wantDone  bool
		wantCalls int
	}{
		{"claimable and unlocked", model.KickerInfo{Claimable: wad("2"), Locked: big.NewInt(0)}, false, true, 1},
		{"still locked", model.KickerInfo{Claimable: wad("2"), Locked: wad("1")}, false, false, 0},
		{"nothing claimable", model.KickerInfo{Claimable: big.NewInt(0), Locked: big.NewInt(0)}, false, false, 0},
		{"dry run", model.KickerInfo{Claimable: wad("2"), Locked: big.NewInt(0)}, true, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := &fakeBondPool{info: tt.info}
			c := NewBondCollector(pool, &directQueue{}, testSigner, tt.dryRun, recorder.NewNoopRecorder(), quietLogger())

			done, err := c.Collect(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.wantDone, done)
			require.Len(t, pool.withdrawals, tt.wantCalls)
			if tt.wantCalls > 0 {
				require.Equal(t, testSigner, pool.withdrawals[0])
			}
		})
	}
}

func TestBondCollectorWithdrawError(t *testing.T) {
	t.Parallel()

	pool := &fakeBondPool{
		info:        model.KickerInfo{Claimable: wad("2"), Locked: big.NewInt(0)},
		withdrawErr: errors.New("execution reverted"),
	}
	c := NewBondCollector(pool, &directQueue{}, testSigner, false, nil, quietLogger())

	done, err := c.Collect(context.Background())
	require.False(t, done)
	require.EqualError(t, err, "execution reverted")
}
