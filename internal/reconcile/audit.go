package reconcile

import (
	"context"

	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

// Drift describes a balance that disagrees with its latest snapshot.
type Drift struct {
	BalanceID      string `json:"balance_id"`
	SnapshotID     string `json:"snapshot_id,omitempty"`
	Amount         string `json:"amount"`
	StakedAmount   string `json:"staked_amount"`
	SnapshotAmount string `json:"snapshot_amount"`
	SnapshotStaked string `json:"snapshot_staked"`
}

// Audit compares the stored balance of (contract, address) with its latest
// snapshot. A crash between the snapshot write and the balance write leaves
// them apart; ok is false when they agree.
func (r *Reconciler) Audit(ctx context.Context, contract, address string) (Drift, bool, error) {
	id := model.BalanceID(contract, address)
	bal, found, err := store.Load[model.Balance](ctx, r.store, id)
	if err != nil {
		return Drift{}, false, err
	}
	snapshots, err := store.FindBy[model.Snapshot](ctx, r.store, "holder_id", id)
	if err != nil {
		return Drift{}, false, err
	}
	if !found && len(snapshots) == 0 {
		return Drift{}, false, nil
	}

	drift := Drift{BalanceID: id, Amount: "0", StakedAmount: "0", SnapshotAmount: "0", SnapshotStaked: "0"}
	if found {
		drift.Amount = normalize(bal.Amount)
		drift.StakedAmount = normalize(bal.StakedAmount)
	}
	if latest, ok := latestSnapshot(snapshots); ok {
		drift.SnapshotID = latest.ID
		drift.SnapshotAmount = normalize(latest.Amount)
		drift.SnapshotStaked = normalize(latest.StakedAmount)
	}

	if drift.Amount == drift.SnapshotAmount && drift.StakedAmount == drift.SnapshotStaked {
		return Drift{}, false, nil
	}
	return drift, true, nil
}

// AuditContract audits every balance of contract.
func (r *Reconciler) AuditContract(ctx context.Context, contract string) ([]Drift, int, error) {
	balances, err := store.FindBy[model.Balance](ctx, r.store, "contract_address", contract)
	if err != nil {
		return nil, 0, err
	}
	var drifts []Drift
	for _, bal := range balances {
		drift, ok, err := r.Audit(ctx, bal.ContractAddress, bal.Address)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			drifts = append(drifts, drift)
		}
	}
	return drifts, len(balances), nil
}

func latestSnapshot(snapshots []model.Snapshot) (model.Snapshot, bool) {
	var latest model.Snapshot
	found := false
	for _, snap := range snapshots {
		if !found || snap.BlockHeight > latest.BlockHeight ||
			(snap.BlockHeight == latest.BlockHeight && snap.Sequence > latest.Sequence) {
			latest = snap
			found = true
		}
	}
	return latest, found
}

func normalize(amount string) string {
	parsed, err := model.ParseAmount(amount)
	if err != nil {
		return amount
	}
	return parsed.String()
}
