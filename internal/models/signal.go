package models

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

func (a SignalAction) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// AgentSignal is a recommendation emitted by the agent pipeline.
type AgentSignal struct {
	ID        string       `json:"id"`
	Symbol    string       `json:"symbol"`
	Action    SignalAction `json:"action"`
	Score     float64      `json:"score"`
	Reason    string       `json:"reason"`
	Timestamp int64        `json:"timestamp"`
}
