// Package engine turns bar history, depth pressure, and greeks into trade
// decisions, and owns the position lifecycle from entry through exit.
package engine

// Action is the outcome class of one evaluation pass.
type Action string

const (
	// ActionWait means a precondition blocked evaluation (warmup, session
	// window, risk gate).
	ActionWait Action = "WAIT"
	// ActionBuy opens a long futures position or buys option premium.
	ActionBuy Action = "BUY"
	// ActionSell opens a short futures position.
	ActionSell Action = "SELL"
	// ActionExit closes the open position.
	ActionExit Action = "EXIT"
	// ActionHold keeps the open position as is.
	ActionHold Action = "HOLD"
	// ActionNoSignal means evaluation ran but no threshold was met.
	ActionNoSignal Action = "NO_SIGNAL"
)

// Side identifies the direction or option leg of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideCE    Side = "CE"
	SidePE    Side = "PE"
)

// Decision is the full output of one evaluation: entries carry levels and
// sizing, exits carry realized P&L, holds and waits carry just a reason.
type Decision struct {
	Action     Action   `json:"action"`
	Reason     string   `json:"reason,omitempty"`
	Symbol     string   `json:"symbol,omitempty"`
	Side       Side     `json:"side,omitempty"`
	Entry      float64  `json:"entry,omitempty"`
	StopLoss   float64  `json:"stop_loss,omitempty"`
	Target     float64  `json:"target,omitempty"`
	Quantity   int      `json:"quantity,omitempty"`
	Score      float64  `json:"score,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Rationale  []string `json:"rationale,omitempty"`
	ExitPrice  float64  `json:"exit_price,omitempty"`
	PnL        float64  `json:"pnl,omitempty"`
	PnLPercent float64  `json:"pnl_percent,omitempty"`
}

// Wait builds a WAIT decision with the blocking reason.
func Wait(reason string) Decision {
	return Decision{Action: ActionWait, Reason: reason}
}

// NoSignal reports an evaluation that stayed below the entry thresholds.
func NoSignal(score, confidence float64, rationale []string) Decision {
	return Decision{
		Action:     ActionNoSignal,
		Score:      score,
		Confidence: confidence,
		Rationale:  rationale,
	}
}
