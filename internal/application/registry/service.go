// Package registry applies ledger instructions: it loads records from their derived
// addresses, enforces the accounting and authorization invariants, and commits record
// writes together with token ledger effects.
package registry

import (
	"time"

	"carbon-registry/internal/application/tokens"
	"carbon-registry/internal/domain"
	"carbon-registry/internal/infrastructure/locking"
	"carbon-registry/internal/pkg/address"

	"gorm.io/gorm"
)

// Instruction names as they appear in signed payloads and the event log.
const (
	InstructionInitialize      = "initialize"
	InstructionCreateProject   = "createProject"
	InstructionVerifyProject   = "verifyProject"
	InstructionSuspendProject  = "suspendProject"
	InstructionIssueCredits    = "issueCredits"
	InstructionRetireCredits   = "retireCredits"
	InstructionTransferCredits = "transferCredits"
	InstructionCreateMint      = "createMint"
)

type Service struct {
	DB        *gorm.DB
	Tokens    *tokens.Service
	Locker    locking.Locker
	Addresses address.Deriver
	Now       func() time.Time
}

// NewService wires an in-process locker; callers running several instances replace
// Locker with a locking.RedisLocker.
func NewService(db *gorm.DB, programID domain.Pubkey) *Service {
	return &Service{
		DB:        db,
		Tokens:    &tokens.Service{DB: db},
		Locker:    locking.NewMemoryLocker(),
		Addresses: address.Deriver{ProgramID: programID},
		Now:       time.Now,
	}
}

func (s *Service) now() int64 {
	return s.Now().Unix()
}

type CreateProjectInput struct {
	ProjectID            uint64             `json:"project_id"`
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	Location             string             `json:"location"`
	ProjectType          domain.ProjectType `json:"project_type"`
	VerificationStandard string             `json:"verification_standard"`
	EstimatedCredits     uint64             `json:"estimated_credits"`
}

type ProjectInput struct {
	ProjectID uint64 `json:"project_id"`
}

type IssueCreditsInput struct {
	ProjectID   uint64        `json:"project_id"`
	Recipient   domain.Pubkey `json:"recipient"`
	Mint        domain.Pubkey `json:"mint"`
	Amount      uint64        `json:"amount"`
	VintageYear uint16        `json:"vintage_year"`
	MetadataURI string        `json:"metadata_uri"`
}

// RetireCreditsInput names the mint the caller burns from. It must be the batch's mint.
type RetireCreditsInput struct {
	BatchID uint64        `json:"batch_id"`
	Mint    domain.Pubkey `json:"mint"`
	Amount  uint64        `json:"amount"`
	Reason  string        `json:"reason"`
}

type TransferCreditsInput struct {
	Mint      domain.Pubkey `json:"mint"`
	Recipient domain.Pubkey `json:"recipient"`
	Amount    uint64        `json:"amount"`
}

type CreateMintInput struct {
	Decimals uint8 `json:"decimals"`
}

type TransferResult struct {
	Mint        domain.Pubkey `json:"mint"`
	From        domain.Pubkey `json:"from"`
	To          domain.Pubkey `json:"to"`
	Amount      uint64        `json:"amount"`
	FromBalance uint64        `json:"from_balance"`
	ToBalance   uint64        `json:"to_balance"`
}
