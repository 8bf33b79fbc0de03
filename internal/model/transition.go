package model

import "math/big"

// Token actions emitted by cw20 and cw20-stake contracts.
const (
	ActionTransfer          = "transfer"
	ActionTransferFrom      = "transfer_from"
	ActionBurn              = "burn"
	ActionBurnFrom          = "burn_from"
	ActionSend              = "send"
	ActionSendFrom          = "send_from"
	ActionMint              = "mint"
	ActionIncreaseAllowance = "increase_allowance"
	ActionDecreaseAllowance = "decrease_allowance"
	ActionStake             = "stake"
	ActionUnstake           = "unstake"
)

// Transition is one canonical balance-changing action extracted from a
// correlated contract event. Amount and StakedAmount are non-negative; the
// reconciler derives signed deltas from Action.
type Transition struct {
	Action       string
	Contract     string
	From         string
	To           string
	Amount       *big.Int
	StakedAmount *big.Int
	Height       uint64
	TxHash       string
}
