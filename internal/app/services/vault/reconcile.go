package vault

import (
	"fmt"
	"sort"
)

// Outcome classifies the result of an update. Both values are success;
// Unchanged makes repeated updates with the same desired set observable as
// no-ops.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
)

// DesiredCredential is one caller-submitted credential in an update request.
type DesiredCredential struct {
	ProviderID string
	Plaintext  string
}

// PersistedCredential is one stored credential already decrypted by the
// caller using the session's derived key.
type PersistedCredential struct {
	RecordID   string
	ProviderID string
	Plaintext  string
}

// PlannedUpdate pairs an existing record with its replacement plaintext.
type PlannedUpdate struct {
	RecordID   string
	ProviderID string
	Plaintext  string
}

// Plan is the reconciled diff between a desired and a persisted credential
// set. Slices are ordered by provider id so plans are deterministic.
type Plan struct {
	Create []DesiredCredential
	Update []PlannedUpdate
	Delete []string // record ids
}

// Empty reports whether the plan carries no mutations.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Outcome returns Unchanged for an empty plan and Applied otherwise.
func (p Plan) Outcome() Outcome {
	if p.Empty() {
		return OutcomeUnchanged
	}
	return OutcomeApplied
}

// Reconcile computes the create/update/delete sets turning persisted into
// desired. It is pure: no I/O, no side effects, fully determined by its
// arguments.
//
// Validation happens before any planning: desired provider ids must be unique
// (ErrDuplicateProvider) and every one must appear in knownProviderIDs
// (ErrUnknownProvider). A validation failure yields a zero Plan, so nothing
// partial can leak to the caller.
func Reconcile(desired []DesiredCredential, persisted []PersistedCredential, knownProviderIDs map[string]struct{}) (Plan, error) {
	byProvider := make(map[string]DesiredCredential, len(desired))
	for _, d := range desired {
		if _, dup := byProvider[d.ProviderID]; dup {
			return Plan{}, fmt.Errorf("provider %s listed twice: %w", d.ProviderID, ErrDuplicateProvider)
		}
		byProvider[d.ProviderID] = d
	}
	for _, d := range desired {
		if _, ok := knownProviderIDs[d.ProviderID]; !ok {
			return Plan{}, fmt.Errorf("provider %s: %w", d.ProviderID, ErrUnknownProvider)
		}
	}

	existing := make(map[string]PersistedCredential, len(persisted))
	for _, p := range persisted {
		existing[p.ProviderID] = p
	}

	var plan Plan
	for providerID, d := range byProvider {
		current, ok := existing[providerID]
		switch {
		case !ok:
			plan.Create = append(plan.Create, d)
		case current.Plaintext != d.Plaintext:
			plan.Update = append(plan.Update, PlannedUpdate{
				RecordID:   current.RecordID,
				ProviderID: providerID,
				Plaintext:  d.Plaintext,
			})
		}
	}
	deleteProviders := make([]string, 0)
	for _, p := range persisted {
		if _, keep := byProvider[p.ProviderID]; !keep {
			deleteProviders = append(deleteProviders, p.ProviderID)
		}
	}

	// Tie-break by provider id, the natural key of the diff.
	sort.Slice(plan.Create, func(i, j int) bool { return plan.Create[i].ProviderID < plan.Create[j].ProviderID })
	sort.Slice(plan.Update, func(i, j int) bool { return plan.Update[i].ProviderID < plan.Update[j].ProviderID })
	sort.Strings(deleteProviders)
	for _, providerID := range deleteProviders {
		plan.Delete = append(plan.Delete, existing[providerID].RecordID)
	}

	return plan, nil
}
