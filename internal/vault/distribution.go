package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

// Default split of net profit.
const (
	DefaultCreatorShareBps  uint16 = 4000
	DefaultExecutorShareBps uint16 = 4000
	DefaultTreasuryShareBps uint16 = 2000
)

// DistributionConfig is the immutable three-way profit split.
type DistributionConfig struct {
	Treasury         solana.PublicKey `json:"treasury"`
	CreatorShareBps  uint16           `json:"creator_share_bps"`
	ExecutorShareBps uint16           `json:"executor_share_bps"`
	TreasuryShareBps uint16           `json:"treasury_share_bps"`
}

func (DistributionConfig) RecordKind() ledger.Kind { return KindDistributionConfig }

// Validate requires the three shares to sum to exactly 10,000 bps.
func (c DistributionConfig) Validate() error {
	sum := uint64(c.CreatorShareBps) + uint64(c.ExecutorShareBps) + uint64(c.TreasuryShareBps)
	if sum != ledger.BpsDenominator {
		return fmt.Errorf("%w: shares sum to %d bps", ErrInvalidProfitDistribution, sum)
	}
	return nil
}

// Shares is one split of net profit.
type Shares struct {
	Creator  uint64 `json:"creator"`
	Executor uint64 `json:"executor"`
	Treasury uint64 `json:"treasury"`
}

// Total is the sum of the three shares.
func (s Shares) Total() (uint64, error) {
	t, err := ledger.CheckedAdd(s.Creator, s.Executor)
	if err != nil {
		return 0, err
	}
	return ledger.CheckedAdd(t, s.Treasury)
}

// Split divides netProfit. Creator and executor shares are truncated and the
// treasury takes the remainder, so the shares always sum to netProfit.
func (c DistributionConfig) Split(netProfit uint64) (Shares, error) {
	var (
		s   Shares
		err error
	)
	if s.Creator, err = ledger.Bps(netProfit, c.CreatorShareBps); err != nil {
		return Shares{}, err
	}
	if s.Executor, err = ledger.Bps(netProfit, c.ExecutorShareBps); err != nil {
		return Shares{}, err
	}
	rest, err := ledger.CheckedSub(netProfit, s.Creator)
	if err != nil {
		return Shares{}, err
	}
	if s.Treasury, err = ledger.CheckedSub(rest, s.Executor); err != nil {
		return Shares{}, err
	}
	return s, nil
}

// DistributionConfigAddress is the address of the split singleton.
func DistributionConfigAddress() solana.PublicKey {
	return ledger.MustDeriveAddress(ProgramID, []byte("profit_config"))
}

// InitializeDistributionTx validates and stores the split singleton.
func InitializeDistributionTx(tx *ledger.Tx, cfg DistributionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return tx.Create(DistributionConfigAddress(), cfg)
}

// LoadDistributionConfig returns the split singleton.
func LoadDistributionConfig(tx *ledger.Tx) (DistributionConfig, error) {
	return ledger.Load[DistributionConfig](tx, DistributionConfigAddress())
}
