package registry

import (
	"context"

	"carbon-registry/internal/domain"
	"carbon-registry/internal/pkg/address"
)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 500
)

func (s *Service) readView(ctx context.Context) *view {
	return &view{tx: s.DB.WithContext(ctx), addresses: s.Addresses}
}

func (s *Service) GetProgramState(ctx context.Context) (*domain.ProgramState, error) {
	state, _, err := s.readView(ctx).programState()
	return state, err
}

func (s *Service) GetProject(ctx context.Context, projectID uint64) (*domain.Project, error) {
	p, _, err := s.readView(ctx).project(projectID)
	return p, err
}

func (s *Service) GetBatch(ctx context.Context, batchID uint64) (*domain.CreditBatch, error) {
	b, _, err := s.readView(ctx).batch(batchID)
	return b, err
}

func (s *Service) GetRetirement(ctx context.Context, batchID uint64, holder domain.Pubkey) (*domain.Retirement, error) {
	r, _, found, err := s.readView(ctx).retirement(batchID, holder)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrRetirementNotFound
	}
	return r, nil
}

type BalanceResult struct {
	Mint    domain.Pubkey `json:"mint"`
	Holder  domain.Pubkey `json:"holder"`
	Address domain.Pubkey `json:"address"`
	Amount  uint64        `json:"amount"`
}

// Balance reports holder's units of mint; unknown mints are an error, unknown holders are 0.
func (s *Service) Balance(ctx context.Context, mint, holder domain.Pubkey) (*BalanceResult, error) {
	db := s.DB.WithContext(ctx)
	if _, err := s.Tokens.GetMint(db, mint); err != nil {
		return nil, err
	}
	amount, err := s.Tokens.Balance(db, mint, holder)
	if err != nil {
		return nil, err
	}
	addr, err := address.AssociatedTokenAccount(holder, mint)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Mint: mint, Holder: holder, Address: addr, Amount: amount}, nil
}

// ListEvents returns the newest events first. limit is clamped to [1, MaxEventLimit].
func (s *Service) ListEvents(ctx context.Context, limit int) ([]domain.LedgerEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	var events []domain.LedgerEvent
	if err := s.DB.WithContext(ctx).Order(`"createdAt" DESC`).Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// DerivedAddress is a record location and the bump that makes it canonical.
type DerivedAddress struct {
	Kind    string        `json:"kind"`
	Address domain.Pubkey `json:"address"`
	Bump    uint8         `json:"bump"`
}

func (s *Service) ProgramStateAddress() (*DerivedAddress, error) {
	addr, bump, err := s.Addresses.ProgramState()
	if err != nil {
		return nil, err
	}
	return &DerivedAddress{Kind: domain.KindProgramState, Address: addr, Bump: bump}, nil
}

func (s *Service) ProjectAddress(projectID uint64) (*DerivedAddress, error) {
	addr, bump, err := s.Addresses.Project(projectID)
	if err != nil {
		return nil, err
	}
	return &DerivedAddress{Kind: domain.KindProject, Address: addr, Bump: bump}, nil
}

func (s *Service) CreditBatchAddress(batchID uint64) (*DerivedAddress, error) {
	addr, bump, err := s.Addresses.CreditBatch(batchID)
	if err != nil {
		return nil, err
	}
	return &DerivedAddress{Kind: domain.KindCreditBatch, Address: addr, Bump: bump}, nil
}

func (s *Service) RetirementAddress(batchID uint64, holder domain.Pubkey) (*DerivedAddress, error) {
	addr, bump, err := s.Addresses.Retirement(batchID, holder)
	if err != nil {
		return nil, err
	}
	return &DerivedAddress{Kind: domain.KindRetirement, Address: addr, Bump: bump}, nil
}
