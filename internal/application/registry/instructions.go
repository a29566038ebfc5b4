package registry

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"carbon-registry/internal/application/tokens"
	"carbon-registry/internal/domain"
	"carbon-registry/internal/pkg/validation"
	"carbon-registry/internal/policies"
)

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	return sum, nil
}

func callerOf(signers []domain.Pubkey) (domain.Pubkey, error) {
	if len(signers) == 0 {
		return domain.Pubkey{}, domain.ErrUnauthorized
	}
	return signers[0], nil
}

// Initialize makes the caller the program authority.
func (s *Service) Initialize(ctx context.Context, signers []domain.Pubkey) (*domain.ProgramState, error) {
	stateAddr, bump, err := s.Addresses.ProgramState()
	if err != nil {
		return nil, err
	}
	var state *domain.ProgramState
	err = s.execute(ctx, InstructionInitialize, signers, []domain.Pubkey{stateAddr}, func(e *execution) error {
		found, err := e.exists(stateAddr)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyInitialized
		}
		state = &domain.ProgramState{Authority: e.caller(), Bump: bump}
		if err := e.put(stateAddr, domain.KindProgramState, state.Encode(), true); err != nil {
			return err
		}
		e.emit(domain.EventProgramInitialized, map[string]interface{}{
			"authority": state.Authority.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// CreateProject registers a Pending project owned by the caller.
func (s *Service) CreateProject(ctx context.Context, signers []domain.Pubkey, in CreateProjectInput) (*domain.Project, error) {
	if err := validation.ValidateProject(validation.ProjectFields{
		Name:                 in.Name,
		Description:          in.Description,
		Location:             in.Location,
		VerificationStandard: in.VerificationStandard,
		ProjectType:          in.ProjectType,
	}); err != nil {
		return nil, err
	}
	stateAddr, _, err := s.Addresses.ProgramState()
	if err != nil {
		return nil, err
	}
	projectAddr, bump, err := s.Addresses.Project(in.ProjectID)
	if err != nil {
		return nil, err
	}

	var project *domain.Project
	err = s.execute(ctx, InstructionCreateProject, signers, []domain.Pubkey{stateAddr, projectAddr}, func(e *execution) error {
		state, _, err := e.programState()
		if err != nil {
			return err
		}
		found, err := e.exists(projectAddr)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyExists
		}
		if state.ProjectCount, err = checkedAdd(state.ProjectCount, 1); err != nil {
			return err
		}
		project = &domain.Project{
			ProjectID:            in.ProjectID,
			Name:                 in.Name,
			Description:          in.Description,
			Location:             in.Location,
			ProjectType:          in.ProjectType,
			VerificationStandard: in.VerificationStandard,
			EstimatedCredits:     in.EstimatedCredits,
			Owner:                e.caller(),
			Status:               domain.ProjectStatusPending,
			CreatedAt:            s.now(),
			Bump:                 bump,
		}
		if err := e.put(projectAddr, domain.KindProject, project.Encode(), true); err != nil {
			return err
		}
		if err := e.put(stateAddr, domain.KindProgramState, state.Encode(), false); err != nil {
			return err
		}
		e.emit(domain.EventProjectCreated, map[string]interface{}{
			"project_id":        project.ProjectID,
			"name":              project.Name,
			"owner":             project.Owner.String(),
			"estimated_credits": project.EstimatedCredits,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// VerifyProject moves a Pending project to Verified. Authority only.
func (s *Service) VerifyProject(ctx context.Context, signers []domain.Pubkey, in ProjectInput) (*domain.Project, error) {
	return s.transitionProject(ctx, InstructionVerifyProject, signers, in.ProjectID, func(p *domain.Project) (string, error) {
		switch p.Status {
		case domain.ProjectStatusVerified:
			return "", domain.ErrProjectAlreadyVerified
		case domain.ProjectStatusSuspended:
			return "", domain.ErrProjectAlreadySuspended
		}
		p.Status = domain.ProjectStatusVerified
		p.VerifiedAt = s.now()
		return domain.EventProjectVerified, nil
	})
}

// SuspendProject moves a Pending or Verified project to Suspended. Authority only.
func (s *Service) SuspendProject(ctx context.Context, signers []domain.Pubkey, in ProjectInput) (*domain.Project, error) {
	return s.transitionProject(ctx, InstructionSuspendProject, signers, in.ProjectID, func(p *domain.Project) (string, error) {
		if p.Status == domain.ProjectStatusSuspended {
			return "", domain.ErrProjectAlreadySuspended
		}
		p.Status = domain.ProjectStatusSuspended
		return domain.EventProjectSuspended, nil
	})
}

func (s *Service) transitionProject(ctx context.Context, instruction string, signers []domain.Pubkey, projectID uint64, apply func(p *domain.Project) (string, error)) (*domain.Project, error) {
	stateAddr, _, err := s.Addresses.ProgramState()
	if err != nil {
		return nil, err
	}
	projectAddr, _, err := s.Addresses.Project(projectID)
	if err != nil {
		return nil, err
	}

	var project *domain.Project
	err = s.execute(ctx, instruction, signers, []domain.Pubkey{stateAddr, projectAddr}, func(e *execution) error {
		state, _, err := e.programState()
		if err != nil {
			return err
		}
		if err := policies.Authorize(policies.RoleAuthority, e.caller(), policies.Subject{Program: state}); err != nil {
			return err
		}
		p, _, err := e.project(projectID)
		if err != nil {
			return err
		}
		eventType, err := apply(p)
		if err != nil {
			return err
		}
		if err := e.put(projectAddr, domain.KindProject, p.Encode(), false); err != nil {
			return err
		}
		e.emit(eventType, map[string]interface{}{
			"project_id": p.ProjectID,
			"status":     p.Status.String(),
		})
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// IssueCredits creates the next credit batch for a verified project and mints its units
// to the recipient.
func (s *Service) IssueCredits(ctx context.Context, signers []domain.Pubkey, in IssueCreditsInput) (*domain.CreditBatch, error) {
	if err := validation.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validation.ValidateMetadataURI(in.MetadataURI); err != nil {
		return nil, err
	}
	stateAddr, _, err := s.Addresses.ProgramState()
	if err != nil {
		return nil, err
	}
	projectAddr, _, err := s.Addresses.Project(in.ProjectID)
	if err != nil {
		return nil, err
	}
	recipientBalance, err := tokens.BalanceAddress(in.Mint, in.Recipient)
	if err != nil {
		return nil, err
	}

	// The batch address depends on the sequence read under the program state lock.
	keys := []domain.Pubkey{stateAddr, projectAddr, in.Mint, recipientBalance}
	var batch *domain.CreditBatch
	err = s.execute(ctx, InstructionIssueCredits, signers, keys, func(e *execution) error {
		state, _, err := e.programState()
		if err != nil {
			return err
		}
		if err := policies.Authorize(policies.RoleAuthority, e.caller(), policies.Subject{Program: state}); err != nil {
			return err
		}
		project, _, err := e.project(in.ProjectID)
		if err != nil {
			return err
		}
		if project.Status != domain.ProjectStatusVerified {
			return domain.ErrProjectNotVerified
		}
		issued, err := checkedAdd(project.IssuedCredits, in.Amount)
		if err != nil || issued > project.EstimatedCredits {
			return domain.ErrExceedsEstimatedCredits
		}
		total, err := checkedAdd(state.TotalCreditsIssued, in.Amount)
		if err != nil {
			return err
		}
		batchID := state.NextBatchSequence
		next, err := checkedAdd(batchID, 1)
		if err != nil {
			return err
		}
		batchAddr, bump, err := e.addresses.CreditBatch(batchID)
		if err != nil {
			return err
		}
		found, err := e.exists(batchAddr)
		if err != nil {
			return err
		}
		if found {
			return domain.ErrAlreadyExists
		}

		if err := s.Tokens.MintTo(e.tx, in.Mint, in.Recipient, in.Amount, e.signers); err != nil {
			return err
		}

		project.IssuedCredits = issued
		state.TotalCreditsIssued = total
		state.NextBatchSequence = next
		batch = &domain.CreditBatch{
			BatchID:     batchID,
			ProjectID:   project.ProjectID,
			Amount:      in.Amount,
			VintageYear: in.VintageYear,
			MetadataURI: in.MetadataURI,
			IssuedAt:    s.now(),
			Owner:       in.Recipient,
			Mint:        in.Mint,
			Bump:        bump,
		}
		if err := e.put(batchAddr, domain.KindCreditBatch, batch.Encode(), true); err != nil {
			return err
		}
		if err := e.put(projectAddr, domain.KindProject, project.Encode(), false); err != nil {
			return err
		}
		if err := e.put(stateAddr, domain.KindProgramState, state.Encode(), false); err != nil {
			return err
		}
		e.emit(domain.EventCreditsIssued, map[string]interface{}{
			"batch_id":     batch.BatchID,
			"project_id":   batch.ProjectID,
			"amount":       batch.Amount,
			"vintage_year": batch.VintageYear,
			"recipient":    batch.Owner.String(),
			"mint":         in.Mint.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// RetireCredits burns the caller's units against a batch and records the retirement.
// A repeat retirement by the same holder adds to the existing record and replaces its
// reason and timestamp.
func (s *Service) RetireCredits(ctx context.Context, signers []domain.Pubkey, in RetireCreditsInput) (*domain.Retirement, error) {
	if err := validation.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validation.ValidateReason(in.Reason); err != nil {
		return nil, err
	}
	caller, err := callerOf(signers)
	if err != nil {
		return nil, err
	}
	stateAddr, _, err := s.Addresses.ProgramState()
	if err != nil {
		return nil, err
	}
	batchAddr, _, err := s.Addresses.CreditBatch(in.BatchID)
	if err != nil {
		return nil, err
	}
	retirementAddr, retirementBump, err := s.Addresses.Retirement(in.BatchID, caller)
	if err != nil {
		return nil, err
	}
	callerBalance, err := tokens.BalanceAddress(in.Mint, caller)
	if err != nil {
		return nil, err
	}

	// Every instruction that writes a project also holds the program state lock, which
	// covers the batch's project here.
	keys := []domain.Pubkey{stateAddr, batchAddr, retirementAddr, in.Mint, callerBalance}
	var retirement *domain.Retirement
	err = s.execute(ctx, InstructionRetireCredits, signers, keys, func(e *execution) error {
		state, _, err := e.programState()
		if err != nil {
			return err
		}
		batch, _, err := e.batch(in.BatchID)
		if err != nil {
			return err
		}
		if batch.Mint != in.Mint {
			return domain.ErrInvalidMint.Wrap(fmt.Errorf("batch %d was issued under %s", batch.BatchID, batch.Mint))
		}
		if batch.LiveBalance() < in.Amount {
			return domain.ErrInsufficientCredits
		}
		if _, err := s.Tokens.GetMint(e.tx, in.Mint); err != nil {
			return err
		}
		held, err := s.Tokens.Balance(e.tx, in.Mint, caller)
		if err != nil {
			return err
		}
		if held < in.Amount {
			return domain.ErrInsufficientCredits
		}
		project, projectAddr, err := e.project(batch.ProjectID)
		if err != nil {
			return err
		}

		if project.RetiredCredits, err = checkedAdd(project.RetiredCredits, in.Amount); err != nil {
			return err
		}
		if project.RetiredCredits > project.IssuedCredits {
			return domain.ErrInsufficientCredits
		}
		if state.TotalCreditsRetired, err = checkedAdd(state.TotalCreditsRetired, in.Amount); err != nil {
			return err
		}
		batch.RetiredAmount += in.Amount

		existing, _, found, err := e.retirement(in.BatchID, caller)
		if err != nil {
			return err
		}
		if found {
			retirement = existing
			if retirement.Amount, err = checkedAdd(retirement.Amount, in.Amount); err != nil {
				return err
			}
		} else {
			retirement = &domain.Retirement{
				BatchID:   in.BatchID,
				Amount:    in.Amount,
				RetiredBy: caller,
				Bump:      retirementBump,
			}
		}
		retirement.Reason = in.Reason
		retirement.RetiredAt = s.now()

		if err := s.Tokens.Burn(e.tx, in.Mint, caller, in.Amount); err != nil {
			if errors.Is(err, domain.ErrInsufficientBalance) {
				return domain.ErrInsufficientCredits
			}
			return err
		}
		if err := e.put(batchAddr, domain.KindCreditBatch, batch.Encode(), false); err != nil {
			return err
		}
		if err := e.put(projectAddr, domain.KindProject, project.Encode(), false); err != nil {
			return err
		}
		if err := e.put(stateAddr, domain.KindProgramState, state.Encode(), false); err != nil {
			return err
		}
		if err := e.put(retirementAddr, domain.KindRetirement, retirement.Encode(), !found); err != nil {
			return err
		}
		e.emit(domain.EventCreditsRetired, map[string]interface{}{
			"batch_id":   in.BatchID,
			"project_id": batch.ProjectID,
			"amount":     in.Amount,
			"reason":     in.Reason,
			"retired_by": caller.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return retirement, nil
}

// TransferCredits moves token units between holders. No ledger record changes.
func (s *Service) TransferCredits(ctx context.Context, signers []domain.Pubkey, in TransferCreditsInput) (*TransferResult, error) {
	if err := validation.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	caller, err := callerOf(signers)
	if err != nil {
		return nil, err
	}
	fromBalance, err := tokens.BalanceAddress(in.Mint, caller)
	if err != nil {
		return nil, err
	}
	toBalance, err := tokens.BalanceAddress(in.Mint, in.Recipient)
	if err != nil {
		return nil, err
	}

	var result *TransferResult
	err = s.execute(ctx, InstructionTransferCredits, signers, []domain.Pubkey{in.Mint, fromBalance, toBalance}, func(e *execution) error {
		if err := s.Tokens.Transfer(e.tx, in.Mint, caller, in.Recipient, in.Amount); err != nil {
			if errors.Is(err, domain.ErrInsufficientBalance) {
				return domain.ErrInsufficientCredits
			}
			return err
		}
		from, err := s.Tokens.Balance(e.tx, in.Mint, caller)
		if err != nil {
			return err
		}
		to, err := s.Tokens.Balance(e.tx, in.Mint, in.Recipient)
		if err != nil {
			return err
		}
		result = &TransferResult{
			Mint:        in.Mint,
			From:        caller,
			To:          in.Recipient,
			Amount:      in.Amount,
			FromBalance: from,
			ToBalance:   to,
		}
		e.emit(domain.EventCreditsTransferred, map[string]interface{}{
			"mint":   in.Mint.String(),
			"from":   caller.String(),
			"to":     in.Recipient.String(),
			"amount": in.Amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateMint registers a credit-unit mint whose authority is the caller.
func (s *Service) CreateMint(ctx context.Context, signers []domain.Pubkey, in CreateMintInput) (*domain.TokenMint, error) {
	caller, err := callerOf(signers)
	if err != nil {
		return nil, err
	}
	var mint *domain.TokenMint
	// mint addresses are numbered per authority, so creations by one authority serialize
	err = s.execute(ctx, InstructionCreateMint, signers, []domain.Pubkey{caller}, func(e *execution) error {
		m, err := s.Tokens.CreateMint(e.tx, caller, in.Decimals)
		if err != nil {
			return err
		}
		mint = m
		e.emit(domain.EventMintCreated, map[string]interface{}{
			"mint":           m.Address,
			"mint_authority": m.MintAuthority,
			"decimals":       m.Decimals,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mint, nil
}
