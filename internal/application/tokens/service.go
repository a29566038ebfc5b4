// Package tokens is the fungible credit-unit ledger: mints and per-holder balances at
// associated addresses. Every mutating call takes the caller's transaction so token
// effects commit or roll back with the instruction that caused them.
package tokens

import (
	"errors"
	"math"

	"carbon-registry/internal/domain"
	"carbon-registry/internal/pkg/address"
	"carbon-registry/internal/policies"

	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.DB
}

// CreateMint registers a new mint controlled by authority. The address is derived from
// the authority and how many mints it already created.
func (s *Service) CreateMint(tx *gorm.DB, authority domain.Pubkey, decimals uint8) (*domain.TokenMint, error) {
	db := s.conn(tx)
	var nonce int64
	if err := db.Model(&domain.TokenMint{}).Where("mint_authority = ?", authority.String()).Count(&nonce).Error; err != nil {
		return nil, err
	}
	addr, _, err := address.Mint(authority, uint64(nonce))
	if err != nil {
		return nil, err
	}
	var existing int64
	if err := db.Model(&domain.TokenMint{}).Where("address = ?", addr.String()).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domain.ErrMintAlreadyExists
	}
	mint := &domain.TokenMint{
		Address:       addr.String(),
		MintAuthority: authority.String(),
		Decimals:      decimals,
		Nonce:         uint64(nonce),
	}
	if err := db.Create(mint).Error; err != nil {
		return nil, err
	}
	return mint, nil
}

// GetMint returns domain.ErrInvalidMint when the mint does not exist.
func (s *Service) GetMint(tx *gorm.DB, mint domain.Pubkey) (*domain.TokenMint, error) {
	var m domain.TokenMint
	if err := s.conn(tx).Where("address = ?", mint.String()).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidMint
		}
		return nil, err
	}
	return &m, nil
}

// Supply is the total outstanding units of mint.
func (s *Service) Supply(tx *gorm.DB, mint domain.Pubkey) (uint64, error) {
	m, err := s.GetMint(tx, mint)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

func (s *Service) findAccount(db *gorm.DB, mint, owner domain.Pubkey) (*domain.TokenAccount, bool, error) {
	addr, err := address.AssociatedTokenAccount(owner, mint)
	if err != nil {
		return nil, false, err
	}
	var acct domain.TokenAccount
	err = db.Where("address = ?", addr.String()).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.TokenAccount{Address: addr.String(), Mint: mint.String(), Owner: owner.String()}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &acct, true, nil
}

// MintTo credits amount to owner's balance, creating the balance if absent. The mint
// authority must be among signers.
func (s *Service) MintTo(tx *gorm.DB, mint, owner domain.Pubkey, amount uint64, signers []domain.Pubkey) error {
	db := s.conn(tx)
	m, err := s.GetMint(db, mint)
	if err != nil {
		return err
	}
	authority, err := domain.ParsePubkey(m.MintAuthority)
	if err != nil {
		return err
	}
	if !policies.HasSigner(authority, signers) {
		return domain.ErrMintAuthorityMismatch
	}
	// balances are stored in signed 64-bit columns
	if amount > math.MaxInt64 || m.Supply > math.MaxInt64-amount {
		return domain.ErrArithmeticOverflow
	}
	acct, found, err := s.findAccount(db, mint, owner)
	if err != nil {
		return err
	}
	acct.Amount += amount
	m.Supply += amount
	if err := saveAccount(db, acct, found); err != nil {
		return err
	}
	return db.Save(m).Error
}

// Burn removes amount from owner's balance and from the mint supply.
func (s *Service) Burn(tx *gorm.DB, mint, owner domain.Pubkey, amount uint64) error {
	db := s.conn(tx)
	m, err := s.GetMint(db, mint)
	if err != nil {
		return err
	}
	acct, found, err := s.findAccount(db, mint, owner)
	if err != nil {
		return err
	}
	if !found || acct.Amount < amount {
		return domain.ErrInsufficientBalance
	}
	acct.Amount -= amount
	m.Supply -= amount
	if err := db.Save(acct).Error; err != nil {
		return err
	}
	return db.Save(m).Error
}

// Transfer moves amount between two holders of the same mint.
func (s *Service) Transfer(tx *gorm.DB, mint, from, to domain.Pubkey, amount uint64) error {
	if from == to {
		return domain.ErrSameAccount
	}
	db := s.conn(tx)
	if _, err := s.GetMint(db, mint); err != nil {
		return err
	}
	src, found, err := s.findAccount(db, mint, from)
	if err != nil {
		return err
	}
	if !found || src.Amount < amount {
		return domain.ErrInsufficientBalance
	}
	dst, dstFound, err := s.findAccount(db, mint, to)
	if err != nil {
		return err
	}
	src.Amount -= amount
	dst.Amount += amount
	if err := db.Save(src).Error; err != nil {
		return err
	}
	return saveAccount(db, dst, dstFound)
}

func saveAccount(db *gorm.DB, acct *domain.TokenAccount, found bool) error {
	if found {
		return db.Save(acct).Error
	}
	return db.Create(acct).Error
}

// Balance is 0 for a holder that never received units of mint.
func (s *Service) Balance(tx *gorm.DB, mint, owner domain.Pubkey) (uint64, error) {
	acct, _, err := s.findAccount(s.conn(tx), mint, owner)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// BalanceAddress is where owner's balance of mint lives.
func BalanceAddress(mint, owner domain.Pubkey) (domain.Pubkey, error) {
	return address.AssociatedTokenAccount(owner, mint)
}
