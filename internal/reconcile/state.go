package reconcile

import (
	"fmt"
	"time"

	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/pkg/types"
)

// State is the reconciliation state of one pending pair.
type State string

const (
	// StateBuyPending means the buy order is still open on the exchange.
	StateBuyPending State = "BUY_PENDING"
	// StateCheckingFill means the buy left the open orders and its fills
	// are being looked up.
	StateCheckingFill State = "CHECKING_FILL"
	// StatePromoting means the buy filled and the sell is being placed.
	StatePromoting State = "PROMOTING"
)

// PairStatus is the derived state of a pending pair.
type PairStatus struct {
	Pair               pending.Pair      `json:"pair"`
	State              State             `json:"state"`
	MissedPolls        int               `json:"missed_polls"`
	FilledQuantity     float64           `json:"filled_quantity"`
	LastExchangeStatus types.OrderStatus `json:"last_exchange_status,omitempty"`
	LastError          string            `json:"last_error,omitempty"`
}

type pairState struct {
	state              State
	missedPolls        int
	unknownLookups     int
	filledQuantity     float64
	lastExchangeStatus types.OrderStatus
	lastError          string
}

// AmbiguityError means a buy left the open orders but none of its fills
// are visible yet. It never changes state.
type AmbiguityError struct {
	PairID      string
	BuyOrderID  int64
	MissedPolls int
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("buy order %d of pair %s not open and no fills found (%d consecutive polls)",
		e.BuyOrderID, e.PairID, e.MissedPolls)
}

// View is the snapshot published after each successful pass.
type View struct {
	Positions []OpenPosition  `json:"positions"`
	Completed []CompletedPair `json:"completed"`
	Pending   []PairStatus    `json:"pending"`
	Balances  types.Balances  `json:"balances,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
