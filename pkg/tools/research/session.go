// Package research implements the deep research toolset: query generation,
// web search, ranking, report writing and progress tracking. All progress is
// kept in State under KeySession.
package research

import (
	"encoding/json"
	"fmt"

	"github.com/femto/minion-novel/pkg/domain"
)

// KeySession holds the research progress in State.
const KeySession = "research_session"

// Progress steps, in order.
const (
	StepInitialized      = "initialized"
	StepQueriesGenerated = "queries_generated"
	StepSearchCompleted  = "search_completed"
	StepResultsFiltered  = "results_filtered"
	StepReportCompleted  = "report_completed"
)

// Result is one search hit.
type Result struct {
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Session is the research progress of one topic.
type Session struct {
	Topic           string   `json:"topic"`
	Queries         []string `json:"queries"`
	AllResults      []Result `json:"all_results"`
	FilteredResults []Result `json:"filtered_results"`
	FinalReport     string   `json:"final_report"`
}

// Step reports how far the session has progressed.
func (s *Session) Step() string {
	switch {
	case s.FinalReport != "":
		return StepReportCompleted
	case len(s.FilteredResults) > 0:
		return StepResultsFiltered
	case len(s.AllResults) > 0:
		return StepSearchCompleted
	case len(s.Queries) > 0:
		return StepQueriesGenerated
	default:
		return StepInitialized
	}
}

// Load reads the research session from state. ok is false when absent.
func Load(state domain.State) (*Session, bool, error) {
	raw, ok := state.Get(KeySession)
	if !ok || raw == nil {
		return nil, false, nil
	}
	// State values are JSON-like maps, so convert through JSON.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s: %w", KeySession, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", KeySession, err)
	}
	return &s, true, nil
}

// Save writes the session into state as a JSON-like map.
func Save(state domain.State, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeySession, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode %s: %w", KeySession, err)
	}
	state.Set(KeySession, m)
	return nil
}
