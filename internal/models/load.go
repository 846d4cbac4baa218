package models

// LoadStatus is the state of a streamed load (bulk symbols or agent pipeline).
type LoadStatus string

const (
	LoadIdle      LoadStatus = "idle"
	LoadLoading   LoadStatus = "loading"
	LoadComplete  LoadStatus = "complete"
	LoadError     LoadStatus = "error"
	LoadCancelled LoadStatus = "cancelled"
)

// CacheCheck is the plain JSON answer of the cache-check endpoint.
type CacheCheck struct {
	Ticks       []Tick `json:"ticks"`
	SymbolCount int    `json:"symbol_count"`
	LastUpdated string `json:"last_updated"`
}

// bulk load stream events

type LoadStartEvent struct {
	Total int `json:"total"`
	Years int `json:"years"`
}

type LoadProgressEvent struct {
	Loaded  int     `json:"loaded"`
	Percent float64 `json:"percent"`
	Symbol  string  `json:"symbol"`
	Status  string  `json:"status"`
}

type LoadCompleteEvent struct {
	Loaded      int    `json:"loaded"`
	Total       int    `json:"total"`
	Message     string `json:"message"`
	LastUpdated string `json:"last_updated"`
}

// LoadProgress is what the load store keeps for the UI.
type LoadProgress struct {
	Preset      string     `json:"preset"`
	Status      LoadStatus `json:"status"`
	Total       int        `json:"total"`
	Loaded      int        `json:"loaded"`
	Percent     float64    `json:"percent"`
	Symbol      string     `json:"symbol"`
	Years       int        `json:"years"`
	Message     string     `json:"message"`
	LastUpdated string     `json:"last_updated"`
}

// agent pipeline stream events

type PipelineStartEvent struct {
	TotalSteps int    `json:"total_steps"`
	Device     string `json:"device"`
}

type AgentStepEvent struct {
	Agent       string  `json:"agent"`
	Step        int     `json:"step"`
	Percent     float64 `json:"percent"`
	SubPercent  float64 `json:"sub_percent"`
	DurationMs  int64   `json:"duration_ms"`
	ResultCount int     `json:"result_count"`
}

type PipelineCompleteEvent struct {
	Results  []AgentSignal  `json:"results"`
	Counts   map[string]int `json:"counts"`
	AvgScore float64        `json:"avg_score"`
}

type AgentStatus struct {
	Agent       string     `json:"agent"`
	Step        int        `json:"step"`
	Status      LoadStatus `json:"status"`
	SubPercent  float64    `json:"sub_percent"`
	DurationMs  int64      `json:"duration_ms"`
	ResultCount int        `json:"result_count"`
}

type PipelineProgress struct {
	RunID      string         `json:"run_id"`
	Status     LoadStatus     `json:"status"`
	TotalSteps int            `json:"total_steps"`
	Step       int            `json:"step"`
	Percent    float64        `json:"percent"`
	Device     string         `json:"device"`
	Agents     []AgentStatus  `json:"agents"`
	Counts     map[string]int `json:"counts"`
	AvgScore   float64        `json:"avg_score"`
	Message    string         `json:"message"`
}
