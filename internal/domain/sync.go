package domain

import "time"

// SyncStatus is the state of a provider sync run.
type SyncStatus string

const (
	SyncInProgress SyncStatus = "in_progress"
	SyncValid      SyncStatus = "valid"
	SyncInvalid    SyncStatus = "invalid"
)

// SyncScope is the resync mode selected from the run arguments.
type SyncScope string

const (
	ScopeAllStores      SyncScope = "all_stores"
	ScopeStoreFull      SyncScope = "store_full"
	ScopeTargeted       SyncScope = "targeted"
	ScopeStoresTargeted SyncScope = "stores_targeted"
)

// ScopeOf selects the resync mode for the given arguments.
func ScopeOf(storeID *int64, entityIDs []int64) SyncScope {
	switch {
	case storeID == nil && len(entityIDs) > 0:
		return ScopeStoresTargeted
	case storeID == nil:
		return ScopeAllStores
	case len(entityIDs) == 0:
		return ScopeStoreFull
	default:
		return ScopeTargeted
	}
}

// SyncRun records one provider run.
type SyncRun struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	Scope       SyncScope  `json:"scope"`
	StoreID     *int64     `json:"store_id,omitempty"`
	EntityCount int        `json:"entity_count"`
	Status      SyncStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
