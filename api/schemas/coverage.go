package schemas

import "time"

// CoverageResult is the normalized outcome of one oracle evaluation.
type CoverageResult struct {
	// Success reports whether every test passed.
	Success bool `json:"success" yaml:"success"`
	// CoveragePercent is the share of target statements executed, 0 to 100.
	CoveragePercent float64 `json:"coverage_percent" yaml:"coverage_percent"`
	// MissedLines lists target lines holding statements that never ran.
	MissedLines []int `json:"missed_lines" yaml:"missed_lines"`
}

// QTable maps a state label to the estimated value of each action label.
type QTable map[string]map[string]float64

// Clone returns a deep copy of the table.
func (q QTable) Clone() QTable {
	out := make(QTable, len(q))
	for state, row := range q {
		cp := make(map[string]float64, len(row))
		for action, v := range row {
			cp[action] = v
		}
		out[state] = cp
	}
	return out
}

// RunMode identifies which search strategy produced a run.
type RunMode string

const (
	RunModeAgent   RunMode = "agent"
	RunModeGenetic RunMode = "genetic"
)

// RunStep is one persisted attempt or generation of a run.
type RunStep struct {
	Index  int     `json:"index" yaml:"index"`
	Label  string  `json:"label" yaml:"label"`
	Status string  `json:"status" yaml:"status"`
	Score  float64 `json:"score" yaml:"score"`
	Code   string  `json:"code" yaml:"code"`
}

// RunRecord summarizes a finished agent or genetic run for history storage.
type RunRecord struct {
	ID          string    `json:"id" yaml:"id"`
	Mode        RunMode   `json:"mode" yaml:"mode"`
	Status      string    `json:"status" yaml:"status"`
	BestScore   float64   `json:"best_score" yaml:"best_score"`
	Evaluations int       `json:"evaluations" yaml:"evaluations"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Steps       []RunStep `json:"steps,omitempty" yaml:"steps,omitempty"`
}
