package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record names. They feed the account discriminator and the accounts.kind column.
const (
	KindProgramState = "ProgramState"
	KindProject      = "Project"
	KindCreditBatch  = "CreditBatch"
	KindRetirement   = "Retirement"
)

// ProjectType is stored as a single byte tag.
type ProjectType uint8

const (
	ProjectTypeReforestation ProjectType = iota
	ProjectTypeRenewableEnergy
	ProjectTypeEnergyEfficiency
	ProjectTypeWasteManagement
	ProjectTypeCarbonCapture
	ProjectTypeOther
)

var projectTypeNames = [...]string{
	"reforestation",
	"renewableEnergy",
	"energyEfficiency",
	"wasteManagement",
	"carbonCapture",
	"other",
}

func (t ProjectType) Valid() bool {
	return int(t) < len(projectTypeNames)
}

func (t ProjectType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ProjectType(%d)", uint8(t))
	}
	return projectTypeNames[t]
}

// ParseProjectType accepts the camelCase name, case-insensitively.
func ParseProjectType(s string) (ProjectType, error) {
	for i, name := range projectTypeNames {
		if strings.EqualFold(name, s) {
			return ProjectType(i), nil
		}
	}
	return 0, ErrInvalidProjectType
}

func (t ProjectType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ProjectType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidProjectType
	}
	pt, err := ParseProjectType(s)
	if err != nil {
		return err
	}
	*t = pt
	return nil
}

// ProjectStatus moves Pending -> Verified, and Pending|Verified -> Suspended.
type ProjectStatus uint8

const (
	ProjectStatusPending ProjectStatus = iota
	ProjectStatusVerified
	ProjectStatusSuspended
)

var projectStatusNames = [...]string{"pending", "verified", "suspended"}

func (s ProjectStatus) Valid() bool {
	return int(s) < len(projectStatusNames)
}

func (s ProjectStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ProjectStatus(%d)", uint8(s))
	}
	return projectStatusNames[s]
}

func (s ProjectStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ProgramState is the singleton holding the authority and program-wide counters.
type ProgramState struct {
	Authority           Pubkey `json:"authority"`
	TotalCreditsIssued  uint64 `json:"total_credits_issued"`
	TotalCreditsRetired uint64 `json:"total_credits_retired"`
	ProjectCount        uint64 `json:"project_count"`
	// NextBatchSequence is the id given to the next credit batch. It is kept apart
	// from TotalCreditsIssued so sequence numbers never depend on unit counts.
	NextBatchSequence uint64 `json:"next_batch_sequence"`
	Bump              uint8  `json:"bump"`
}

// Project is a registered carbon-offset project and its running credit totals.
type Project struct {
	ProjectID            uint64        `json:"project_id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Location             string        `json:"location"`
	ProjectType          ProjectType   `json:"project_type"`
	VerificationStandard string        `json:"verification_standard"`
	EstimatedCredits     uint64        `json:"estimated_credits"`
	IssuedCredits        uint64        `json:"issued_credits"`
	RetiredCredits       uint64        `json:"retired_credits"`
	Owner                Pubkey        `json:"owner"`
	Status               ProjectStatus `json:"status"`
	CreatedAt            int64         `json:"created_at"`
	VerifiedAt           int64         `json:"verified_at"`
	Bump                 uint8         `json:"bump"`
}

// CreditBatch is one issuance event. Only RetiredAmount changes after creation; Mint is
// the token mint its units were issued under.
type CreditBatch struct {
	BatchID       uint64 `json:"batch_id"`
	ProjectID     uint64 `json:"project_id"`
	Amount        uint64 `json:"amount"`
	VintageYear   uint16 `json:"vintage_year"`
	MetadataURI   string `json:"metadata_uri"`
	IssuedAt      int64  `json:"issued_at"`
	RetiredAmount uint64 `json:"retired_amount"`
	Owner         Pubkey `json:"owner"`
	Mint          Pubkey `json:"mint"`
	Bump          uint8  `json:"bump"`
}

// LiveBalance is the part of the batch not yet retired.
func (b *CreditBatch) LiveBalance() uint64 {
	return b.Amount - b.RetiredAmount
}

// Retirement accumulates what one holder retired against one batch.
type Retirement struct {
	BatchID   uint64 `json:"batch_id"`
	Amount    uint64 `json:"amount"`
	Reason    string `json:"reason"`
	RetiredBy Pubkey `json:"retired_by"`
	RetiredAt int64  `json:"retired_at"`
	Bump      uint8  `json:"bump"`
}
