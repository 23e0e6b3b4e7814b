package reconcile

import (
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/layer-3/pinwallet/core"
)

const accountCacheSize = 16

// StateSource exposes the onboarding machine's observable state
type StateSource interface {
	Status() core.Status
}

// AccountView is the current-account answer served to callers
type AccountView struct {
	Address    string               `json:"address,omitempty"`
	Connected  bool                 `json:"is_connected"`
	State      core.ConnectionState `json:"connection_state"`
	Blockchain string               `json:"blockchain,omitempty"`
	Loading    bool                 `json:"is_loading"`
}

// AccountQuery memoizes the current-account view per address until invalidated
type AccountQuery struct {
	source StateSource
	cache  *lru.Cache[string, AccountView]
}

// NewAccountQuery creates a query over source
func NewAccountQuery(source StateSource) *AccountQuery {
	return &AccountQuery{
		source: source,
		cache:  lru.NewCache[string, AccountView](accountCacheSize),
	}
}

// Get returns the view for the machine's current address
func (q *AccountQuery) Get() AccountView {
	status := q.source.Status()
	if view, ok := q.cache.Get(status.Address); ok && view.State == status.State {
		return view
	}

	view := AccountView{
		Address:    status.Address,
		Connected:  status.Connected(),
		State:      status.State,
		Blockchain: status.Blockchain,
		Loading:    status.State.Busy(),
	}
	q.cache.Add(status.Address, view)
	return view
}

// Invalidate drops every memoized view
func (q *AccountQuery) Invalidate() {
	q.cache.Purge()
}

// Len returns the number of memoized views
func (q *AccountQuery) Len() int {
	return q.cache.Len()
}
