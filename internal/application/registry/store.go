package registry

import (
	"errors"
	"fmt"

	"carbon-registry/internal/domain"
	"carbon-registry/internal/pkg/address"

	"gorm.io/gorm"
)

// view reads and stages ledger records inside one instruction transaction. Records are
// looked up by derived address and accepted only at their canonical address.
type view struct {
	tx        *gorm.DB
	addresses address.Deriver
}

func (v *view) programID() domain.Pubkey {
	return v.addresses.ProgramID
}

// load is the explicit existence check against the keyed account store.
func (v *view) load(addr domain.Pubkey) (*domain.Account, bool, error) {
	var acct domain.Account
	err := v.tx.Where("address = ?", addr.String()).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load account %s: %w", addr, err)
	}
	if acct.Owner != v.programID().String() {
		return nil, false, domain.ErrInvalidRecord.Wrap(fmt.Errorf("account %s owned by %s", addr, acct.Owner))
	}
	return &acct, true, nil
}

func (v *view) exists(addr domain.Pubkey) (bool, error) {
	var n int64
	if err := v.tx.Model(&domain.Account{}).Where("address = ?", addr.String()).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check account %s: %w", addr, err)
	}
	return n > 0, nil
}

func (v *view) canonical(addr domain.Pubkey, seeds [][]byte, bump uint8) error {
	if !address.VerifyCanonical(addr, seeds, bump, v.programID()) {
		return domain.ErrNonCanonicalAddress
	}
	return nil
}

// put creates the account when it is new and overwrites its data otherwise.
func (v *view) put(addr domain.Pubkey, kind string, data []byte, isNew bool) error {
	acct := domain.Account{
		Address: addr.String(),
		Owner:   v.programID().String(),
		Kind:    kind,
		Data:    data,
	}
	if isNew {
		if err := v.tx.Create(&acct).Error; err != nil {
			return fmt.Errorf("create %s at %s: %w", kind, addr, err)
		}
		return nil
	}
	res := v.tx.Model(&domain.Account{}).Where("address = ?", addr.String()).Update("data", data)
	if res.Error != nil {
		return fmt.Errorf("update %s at %s: %w", kind, addr, res.Error)
	}
	return nil
}

func (v *view) programState() (*domain.ProgramState, domain.Pubkey, error) {
	addr, _, err := v.addresses.ProgramState()
	if err != nil {
		return nil, addr, err
	}
	acct, ok, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	if !ok {
		return nil, addr, domain.ErrNotInitialized
	}
	state, err := domain.DecodeProgramState(acct.Data)
	if err != nil {
		return nil, addr, err
	}
	if err := v.canonical(addr, address.ProgramStateSeeds(), state.Bump); err != nil {
		return nil, addr, err
	}
	return state, addr, nil
}

func (v *view) project(id uint64) (*domain.Project, domain.Pubkey, error) {
	addr, _, err := v.addresses.Project(id)
	if err != nil {
		return nil, addr, err
	}
	acct, ok, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	if !ok {
		return nil, addr, domain.ErrProjectNotFound
	}
	p, err := domain.DecodeProject(acct.Data)
	if err != nil {
		return nil, addr, err
	}
	if err := v.canonical(addr, address.ProjectSeeds(id), p.Bump); err != nil {
		return nil, addr, err
	}
	return p, addr, nil
}

func (v *view) batch(id uint64) (*domain.CreditBatch, domain.Pubkey, error) {
	addr, _, err := v.addresses.CreditBatch(id)
	if err != nil {
		return nil, addr, err
	}
	acct, ok, err := v.load(addr)
	if err != nil {
		return nil, addr, err
	}
	if !ok {
		return nil, addr, domain.ErrBatchNotFound
	}
	b, err := domain.DecodeCreditBatch(acct.Data)
	if err != nil {
		return nil, addr, err
	}
	if err := v.canonical(addr, address.CreditBatchSeeds(id), b.Bump); err != nil {
		return nil, addr, err
	}
	return b, addr, nil
}

// retirement returns found=false with a nil record when holder never retired against batch.
func (v *view) retirement(batchID uint64, holder domain.Pubkey) (*domain.Retirement, domain.Pubkey, bool, error) {
	addr, _, err := v.addresses.Retirement(batchID, holder)
	if err != nil {
		return nil, addr, false, err
	}
	acct, ok, err := v.load(addr)
	if err != nil || !ok {
		return nil, addr, false, err
	}
	r, err := domain.DecodeRetirement(acct.Data)
	if err != nil {
		return nil, addr, false, err
	}
	if err := v.canonical(addr, address.RetirementSeeds(batchID, holder), r.Bump); err != nil {
		return nil, addr, false, err
	}
	return r, addr, true, nil
}
