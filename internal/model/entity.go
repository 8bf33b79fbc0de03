package model

import (
	"strconv"
	"strings"
	"time"
)

// IDSeparator joins the fields of composite entity identifiers.
const IDSeparator = ":"

// Entity is a durable record addressed by type and deterministic id.
type Entity interface {
	EntityType() string
	EntityID() string
}

// JoinID builds a composite identifier from its contributing fields.
func JoinID(parts ...string) string {
	return strings.Join(parts, IDSeparator)
}

// HeightID formats a block height for use in identifiers.
func HeightID(height uint64) string {
	return strconv.FormatUint(height, 10)
}

// Balance is the running token total for one holder of one contract.
type Balance struct {
	ID                string `json:"id"`
	ContractAddress   string `json:"contract_address"`
	Address           string `json:"address"`
	Amount            string `json:"amount"`
	StakedAmount      string `json:"staked_amount"`
	LastUpdatedHeight uint64 `json:"last_updated_height"`
}

func (Balance) EntityType() string { return "Balance" }
func (b Balance) EntityID() string { return b.ID }

func BalanceID(contract, address string) string {
	return JoinID(contract, address)
}

// Snapshot is an append-only record of a holder's balance after one
// qualifying action. Sequence counts snapshots sharing SecondaryID.
type Snapshot struct {
	ID              string `json:"id"`
	SecondaryID     string `json:"secondary_id"`
	HolderID        string `json:"holder_id"`
	ContractAddress string `json:"contract_address"`
	Address         string `json:"address"`
	BlockHeight     uint64 `json:"block_height"`
	Sequence        int    `json:"sequence"`
	TxHash          string `json:"tx_hash"`
	Amount          string `json:"amount"`
	StakedAmount    string `json:"staked_amount"`
	AmountDelta     string `json:"amount_delta"`
	StakedDelta     string `json:"staked_delta"`
}

func (Snapshot) EntityType() string { return "Snapshot" }
func (s Snapshot) EntityID() string { return s.ID }

// SnapshotSecondaryID groups snapshots of one holder within one block.
func SnapshotSecondaryID(contract, address string, height uint64) string {
	return JoinID(contract, address, HeightID(height))
}

// SnapshotID identifies the sequence-th snapshot of a secondary id.
func SnapshotID(secondaryID string, sequence int) string {
	return JoinID(secondaryID, strconv.Itoa(sequence))
}

// TotalBalance is the per-contract supply and the bootstrap guard.
type TotalBalance struct {
	ID             string `json:"id"`
	Amount         string `json:"amount"`
	Initialized    bool   `json:"initialized"`
	BaselineHeight uint64 `json:"baseline_height"`
}

func (TotalBalance) EntityType() string { return "TotalBalance" }
func (t TotalBalance) EntityID() string { return t.ID }

// Pool holds the reserves of an AMM pool contract.
type Pool struct {
	ID            string `json:"id"`
	Contract      string `json:"contract"`
	Token1Amount  string `json:"token1_amount"`
	Token2Amount  string `json:"token2_amount"`
	UpdatedHeight uint64 `json:"updated_height"`
}

func (Pool) EntityType() string { return "Pool" }
func (p Pool) EntityID() string { return p.ID }

// PoolSnapshot records pool reserves after a swap.
type PoolSnapshot struct {
	ID           string `json:"id"`
	SecondaryID  string `json:"secondary_id"`
	Contract     string `json:"contract"`
	BlockHeight  uint64 `json:"block_height"`
	Sequence     int    `json:"sequence"`
	TxHash       string `json:"tx_hash"`
	Token1Amount string `json:"token1_amount"`
	Token2Amount string `json:"token2_amount"`
}

func (PoolSnapshot) EntityType() string { return "PoolSnapshot" }
func (p PoolSnapshot) EntityID() string { return p.ID }

// Dao is a DAO core contract and its most recent known configuration.
type Dao struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Description            string     `json:"description"`
	ImageURL               string     `json:"image_url,omitempty"`
	DaoURI                 string     `json:"dao_uri,omitempty"`
	Created                *time.Time `json:"created,omitempty"`
	InfoUpdatedAt          time.Time  `json:"info_updated_at"`
	InfoUpdatedHeight      uint64     `json:"info_updated_height"`
	ParentDaoID            string     `json:"parent_dao_id,omitempty"`
	ParentDaoUpdatedAt     *time.Time `json:"parent_dao_updated_at,omitempty"`
	ParentDaoUpdatedHeight uint64     `json:"parent_dao_updated_height,omitempty"`
}

func (Dao) EntityType() string { return "Dao" }
func (d Dao) EntityID() string { return d.ID }

// ProposalModule is a governance contract that owns proposals.
type ProposalModule struct {
	ID string `json:"id"`
}

func (ProposalModule) EntityType() string { return "ProposalModule" }
func (p ProposalModule) EntityID() string { return p.ID }

// Proposal tracks the lifecycle of one proposal of a module.
type Proposal struct {
	ID                  string     `json:"id"`
	ModuleID            string     `json:"module_id"`
	Num                 uint64     `json:"num"`
	Open                bool       `json:"open"`
	ExpiresAtDate       *time.Time `json:"expires_at_date,omitempty"`
	ExpiresAtHeight     uint64     `json:"expires_at_height,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ExecutedAt          *time.Time `json:"executed_at,omitempty"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	StatusUpdatedHeight uint64     `json:"status_updated_height"`
}

func (Proposal) EntityType() string { return "Proposal" }
func (p Proposal) EntityID() string { return p.ID }

// Finalized reports whether the proposal was executed or closed.
func (p Proposal) Finalized() bool {
	return p.ExecutedAt != nil || p.ClosedAt != nil
}

func ProposalID(module string, num uint64) string {
	return JoinID(module, strconv.FormatUint(num, 10))
}

// ProposalVote is one wallet's vote on a proposal.
type ProposalVote struct {
	ID         string    `json:"id"`
	WalletID   string    `json:"wallet_id"`
	ProposalID string    `json:"proposal_id"`
	VotedAt    time.Time `json:"voted_at"`
}

func (ProposalVote) EntityType() string { return "ProposalVote" }
func (v ProposalVote) EntityID() string { return v.ID }

// Wallet is a voter address.
type Wallet struct {
	ID string `json:"id"`
}

func (Wallet) EntityType() string { return "Wallet" }
func (w Wallet) EntityID() string { return w.ID }
