package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account is the keyed store row behind every ledger record: address -> encoded data.
type Account struct {
	Address   string    `gorm:"column:address;type:varchar(44);primaryKey" json:"address"`
	Owner     string    `gorm:"column:owner;type:varchar(44);not null;index" json:"owner"`
	Kind      string    `gorm:"column:kind;type:varchar(32);not null;index" json:"kind"`
	Data      []byte    `gorm:"column:data;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}

// TokenMint is a fungible credit-unit mint. Supply always equals the sum of its balances.
type TokenMint struct {
	Address       string    `gorm:"column:address;type:varchar(44);primaryKey" json:"address"`
	MintAuthority string    `gorm:"column:mint_authority;type:varchar(44);not null;index" json:"mint_authority"`
	Decimals      uint8     `gorm:"column:decimals;not null;default:0" json:"decimals"`
	Supply        uint64    `gorm:"column:supply;not null;default:0" json:"supply"`
	Nonce         uint64    `gorm:"column:nonce;not null" json:"nonce"`
	CreatedAt     time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (TokenMint) TableName() string {
	return "token_mints"
}

// TokenAccount is one holder's balance of one mint, stored at its associated address.
type TokenAccount struct {
	Address   string    `gorm:"column:address;type:varchar(44);primaryKey" json:"address"`
	Mint      string    `gorm:"column:mint;type:varchar(44);not null;uniqueIndex:idx_token_accounts_mint_owner" json:"mint"`
	Owner     string    `gorm:"column:owner;type:varchar(44);not null;uniqueIndex:idx_token_accounts_mint_owner" json:"owner"`
	Amount    uint64    `gorm:"column:amount;not null;default:0" json:"amount"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (TokenAccount) TableName() string {
	return "token_accounts"
}

// Event types appended to the ledger log.
const (
	EventProgramInitialized = "ProgramInitialized"
	EventProjectCreated     = "ProjectCreated"
	EventProjectVerified    = "ProjectVerified"
	EventProjectSuspended   = "ProjectSuspended"
	EventCreditsIssued      = "CreditsIssued"
	EventCreditsRetired     = "CreditsRetired"
	EventCreditsTransferred = "CreditsTransferred"
	EventMintCreated        = "MintCreated"
)

// LedgerEvent is written in the same transaction as the instruction that caused it.
type LedgerEvent struct {
	EventID     uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	Instruction string         `gorm:"column:instruction;type:varchar(32);not null;index" json:"instruction"`
	EventType   string         `gorm:"column:event_type;type:varchar(32);not null" json:"event_type"`
	Signer      string         `gorm:"column:signer;type:varchar(44);not null" json:"signer"`
	EventData   datatypes.JSON `gorm:"column:event_data;not null" json:"event_data"`
	CreatedAt   time.Time      `gorm:"column:createdAt;index" json:"createdAt"`
}

func (LedgerEvent) TableName() string {
	return "ledger_events"
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
