package vault

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/mevrebels/internal/ledger"
)

const EventVaultFunded ledger.EventKind = "VaultFunded"

type VaultFunded struct {
	Funder             solana.PublicKey `json:"funder"`
	Amount             uint64           `json:"amount"`
	AvailableLiquidity uint64           `json:"available_liquidity"`
	Timestamp          int64            `json:"timestamp"`
}

// State is the vault record with its address.
type State struct {
	Vault
	Address      solana.PublicKey   `json:"address"`
	Distribution DistributionConfig `json:"distribution"`
}

// Service exposes vault operations as standalone ledger transactions.
type Service struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewService creates a vault Service.
func NewService(l *ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{
		ledger: l,
		logger: logger.With(slog.String("component", "vault")),
	}
}

// Fund adds liquidity owned by funder to the vault.
func (s *Service) Fund(ctx context.Context, funder solana.PublicKey, amount uint64) (Vault, error) {
	var v Vault
	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		v, err = FundTx(tx, funder, amount)
		return err
	})
	if err != nil {
		return Vault{}, err
	}
	s.logger.InfoContext(ctx, "vault funded",
		slog.String("funder", funder.String()),
		slog.String("amount", ledger.FormatSol(amount)),
		slog.String("available", ledger.FormatSol(v.AvailableLiquidity)),
	)
	return v, nil
}

// State returns the vault and the distribution config.
func (s *Service) State(ctx context.Context) (State, error) {
	var st State
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		v, err := LoadVault(tx)
		if err != nil {
			return err
		}
		dist, err := LoadDistributionConfig(tx)
		if err != nil {
			return err
		}
		st = State{Vault: v, Address: VaultAddress(), Distribution: dist}
		return nil
	})
	return st, err
}

// Distribution returns the profit split.
func (s *Service) Distribution(ctx context.Context) (DistributionConfig, error) {
	var cfg DistributionConfig
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		cfg, err = LoadDistributionConfig(tx)
		return err
	})
	return cfg, err
}
