// Package protocol assembles the registry, liquidity, engine and governance
// programs over one ledger and bootstraps their singleton records.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/engine"
	"github.com/alanyoungcy/mevrebels/internal/flashloan"
	"github.com/alanyoungcy/mevrebels/internal/governance"
	"github.com/alanyoungcy/mevrebels/internal/ledger"
	"github.com/alanyoungcy/mevrebels/internal/registry"
	"github.com/alanyoungcy/mevrebels/internal/token"
	"github.com/alanyoungcy/mevrebels/internal/vault"
)

// NewCodec returns a codec that can decode every record kind the protocol
// writes.
func NewCodec() *ledger.Codec {
	c := ledger.NewCodec()
	token.RegisterRecords(c)
	registry.RegisterRecords(c)
	flashloan.RegisterRecords(c)
	vault.RegisterRecords(c)
	engine.RegisterRecords(c)
	governance.RegisterRecords(c)
	return c
}

// Params configures Bootstrap.
type Params struct {
	Admin solana.PublicKey
	Mode  string

	// FeeBps is the flash-loan or vault fee. Nil selects the default; zero
	// is a valid fee.
	FeeBps           *uint16
	CreatorShareBps  uint16
	ExecutorShareBps uint16
	TreasuryShareBps uint16

	Governance       governance.InitParams
	DistributeTokens bool

	// Minted to the admin when the liquidity mint is first created, then
	// used to seed the pool or vault and the trading venue.
	OperatorFunding  uint64
	InitialLiquidity uint64
	VenueReserve     uint64
}

func (p Params) withDefaults() Params {
	if p.Mode == "" {
		p.Mode = engine.ModePool
	}
	if p.FeeBps == nil {
		fee := flashloan.DefaultFeeBps
		p.FeeBps = &fee
	}
	if p.CreatorShareBps == 0 && p.ExecutorShareBps == 0 && p.TreasuryShareBps == 0 {
		p.CreatorShareBps = vault.DefaultCreatorShareBps
		p.ExecutorShareBps = vault.DefaultExecutorShareBps
		p.TreasuryShareBps = vault.DefaultTreasuryShareBps
	}
	p.Governance.Admin = p.Admin
	p.Governance.TreasuryMint = token.NativeMint
	return p
}

// Report lists what one Bootstrap call created.
type Report struct {
	Mode    string   `json:"mode"`
	Created []string `json:"created"`
}

// Bootstrap creates every missing singleton in one transaction. Running it
// against an already bootstrapped ledger changes nothing.
func Bootstrap(ctx context.Context, l *ledger.Ledger, params Params) (Report, error) {
	p := params.withDefaults()
	if p.Admin.IsZero() {
		return Report{}, errors.New("protocol: bootstrap: admin is required")
	}
	source, err := engine.SourceFor(p.Mode)
	if err != nil {
		return Report{}, err
	}
	p.Mode = source.Mode()
	var rep Report
	err = l.Update(ctx, func(tx *ledger.Tx) error {
		rep = Report{Mode: p.Mode}
		return bootstrapTx(tx, p, &rep)
	})
	if err != nil {
		return Report{}, fmt.Errorf("protocol: bootstrap: %w", err)
	}
	return rep, nil
}

func bootstrapTx(tx *ledger.Tx, p Params, rep *Report) error {
	mint := token.NativeMint
	if !token.MintExists(tx, mint) {
		if err := token.CreateMint(tx, mint, p.Admin, ledger.SolDecimals); err != nil {
			return err
		}
		if p.OperatorFunding > 0 {
			if err := token.MintTo(tx, mint, p.Admin, p.Admin, p.OperatorFunding); err != nil {
				return err
			}
		}
		rep.Created = append(rep.Created, "liquidity_mint")
	}

	if !tx.Exists(registry.AdminConfigAddress()) {
		if err := registry.InitializeAdminTx(tx, p.Admin, governance.ConfigAddress()); err != nil {
			return err
		}
		rep.Created = append(rep.Created, "registry_admin")
	}

	if !tx.Exists(governance.ConfigAddress()) {
		if _, err := governance.InitializeTx(tx, p.Governance); err != nil {
			return err
		}
		rep.Created = append(rep.Created, "governance")
	}
	if p.DistributeTokens {
		cfg, err := governance.LoadConfig(tx)
		if err != nil {
			return err
		}
		if !cfg.DistributionCompleted {
			if _, err := governance.DistributeTokensTx(tx); err != nil {
				return err
			}
			rep.Created = append(rep.Created, "token_distribution")
		}
	}

	if !tx.Exists(vault.DistributionConfigAddress()) {
		err := vault.InitializeDistributionTx(tx, vault.DistributionConfig{
			Treasury:         governance.TreasuryAddress(),
			CreatorShareBps:  p.CreatorShareBps,
			ExecutorShareBps: p.ExecutorShareBps,
			TreasuryShareBps: p.TreasuryShareBps,
		})
		if err != nil {
			return err
		}
		rep.Created = append(rep.Created, "profit_distribution")
	}

	switch p.Mode {
	case engine.ModePool:
		if !tx.Exists(flashloan.PoolAddress()) {
			if _, err := flashloan.InitializeTx(tx, p.Admin, mint, *p.FeeBps); err != nil {
				return err
			}
			if p.InitialLiquidity > 0 {
				if _, err := flashloan.DepositTx(tx, p.Admin, p.InitialLiquidity); err != nil {
					return err
				}
			}
			rep.Created = append(rep.Created, "flash_pool")
		}
	case engine.ModeVault:
		if !tx.Exists(vault.VaultAddress()) {
			if _, err := vault.InitializeTx(tx, p.Admin, mint, *p.FeeBps); err != nil {
				return err
			}
			if p.InitialLiquidity > 0 {
				if _, err := vault.FundTx(tx, p.Admin, p.InitialLiquidity); err != nil {
					return err
				}
			}
			rep.Created = append(rep.Created, "execution_vault")
		}
	}

	if !tx.Exists(engine.StatsAddress()) {
		if err := engine.InitializeTx(tx, mint, p.Mode); err != nil {
			return err
		}
		if p.VenueReserve > 0 {
			if err := token.Transfer(tx, mint, p.Admin, engine.VenueAddress(), p.VenueReserve); err != nil {
				return err
			}
		}
		rep.Created = append(rep.Created, "engine")
		return nil
	}
	stats, err := engine.LoadStats(tx)
	if err != nil {
		return err
	}
	if stats.Mode != p.Mode {
		return fmt.Errorf("%w: ledger %s, config %s", engine.ErrLiquidityModeMismatch, stats.Mode, p.Mode)
	}
	return nil
}

// Options configures New.
type Options struct {
	Mode    string
	RateNum uint64
	RateDen uint64
	Logger  *slog.Logger
	Trader  engine.Trader
}

// Protocol holds every program service over one ledger.
type Protocol struct {
	Ledger     *ledger.Ledger
	Tokens     *token.Service
	Registry   *registry.Registry
	Pool       *flashloan.Service
	Vault      *vault.Service
	Governance *governance.Service
	Engine     *engine.Engine
}

// New wires the program services. A nil Trader defaults to a fixed-rate
// trader at RateNum/RateDen, or 108/100 when unset.
func New(l *ledger.Ledger, opts Options) (*Protocol, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	source, err := engine.SourceFor(opts.Mode)
	if err != nil {
		return nil, err
	}
	trader := opts.Trader
	if trader == nil {
		num, den := opts.RateNum, opts.RateDen
		if num == 0 && den == 0 {
			num, den = 108, 100
		}
		ft, err := engine.NewFixedRateTrader(token.NativeMint, num, den)
		if err != nil {
			return nil, err
		}
		trader = ft
	}
	return &Protocol{
		Ledger:     l,
		Tokens:     token.NewService(l),
		Registry:   registry.New(l, logger),
		Pool:       flashloan.NewService(l, logger),
		Vault:      vault.NewService(l, logger),
		Governance: governance.NewService(l, logger),
		Engine:     engine.New(l, source, trader, logger),
	}, nil
}

// Mode returns the liquidity mode the protocol executes against.
func (p *Protocol) Mode() string { return p.Engine.Mode() }
