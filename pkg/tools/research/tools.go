package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
)

// Tool names.
const (
	GenerateQueriesName = "generate_queries"
	WebSearchName       = "web_search"
	FilterResultsName   = "filter_results"
	GenerateReportName  = "generate_report"
	ProgressName        = "check_progress"
)

// Limits.
const (
	DefaultMaxResults = 5
	TopResults        = 6
	FallbackRelevance = 0.6
	FallbackSource    = "fallback.com"
)

var queryTemplates = []string{
	"What is %s?",
	"History and background of %s",
	"Current developments in %s",
	"Key challenges in %s",
	"Future trends in %s",
}

// Queries expands a topic into search queries.
func Queries(topic string, count int) []string {
	if count <= 0 || count > len(queryTemplates) {
		count = len(queryTemplates)
	}
	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = fmt.Sprintf(queryTemplates[i], topic)
	}
	return out
}

// QueryArgs are the arguments of generate_queries.
type QueryArgs struct {
	Topic string `json:"topic" validate:"required"`
	Count int    `json:"count"`
}

// GenerateQueries starts (or restarts) a research session for a topic.
func GenerateQueries() tool.Tool {
	return tool.Typed(GenerateQueriesName, "Generates focused research queries for a topic and starts a research session.",
		func(ctx context.Context, in QueryArgs, state domain.State) (any, error) {
			topic := strings.TrimSpace(in.Topic)
			s, ok, err := Load(state)
			if err != nil {
				return nil, err
			}
			if !ok || !strings.EqualFold(s.Topic, topic) {
				s = &Session{Topic: topic}
			}
			s.Queries = Queries(topic, in.Count)
			if err := Save(state, s); err != nil {
				return nil, err
			}
			return map[string]any{"queries": s.Queries, "count": len(s.Queries)}, nil
		},
		tool.WithParameters(tool.Object(map[string]any{
			"topic": tool.Property("string", "The research topic."),
			"count": tool.Property("integer", "How many queries to generate (max 5)."),
		}, "topic")),
	)
}

// SearchArgs are the arguments of web_search.
type SearchArgs struct {
	Query   string   `json:"query"`
	Queries []string `json:"queries"`
}

// SearchOption configures WebSearch.
type SearchOption func(*searchConfig)

type searchConfig struct {
	maxResults int
	logger     *slog.Logger
}

// WithMaxResults bounds the results fetched per query.
func WithMaxResults(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithLogger logs provider failures.
func WithLogger(logger *slog.Logger) SearchOption {
	return func(c *searchConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WebSearch searches each query (the session queries when none are given).
// A provider failure degrades to a single fallback result for that query.
func WebSearch(searcher Searcher, opts ...SearchOption) tool.Tool {
	cfg := searchConfig{maxResults: DefaultMaxResults, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return tool.Typed(WebSearchName, "Searches the web for each research query and stores the results.",
		func(ctx context.Context, in SearchArgs, state domain.State) (any, error) {
			s, ok, err := Load(state)
			if err != nil {
				return nil, err
			}
			queries := in.Queries
			if in.Query != "" {
				queries = append([]string{in.Query}, queries...)
			}
			if len(queries) == 0 && ok {
				queries = s.Queries
			}
			if len(queries) == 0 {
				return nil, errors.New("no queries to search; generate queries first")
			}
			if !ok {
				s = &Session{Topic: queries[0]}
			}

			var found []Result
			for _, q := range queries {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				results, err := searcher.Search(ctx, q, cfg.maxResults)
				if err != nil {
					cfg.logger.Warn("search failed, using fallback result", "query", q, "err", err)
					results = []Result{fallback(q)}
				}
				found = append(found, results...)
			}

			s.AllResults = append(s.AllResults, found...)
			if err := Save(state, s); err != nil {
				return nil, err
			}
			return map[string]any{"count": len(found), "total": len(s.AllResults)}, nil
		},
		tool.WithParameters(tool.Object(map[string]any{
			"query":   tool.Property("string", "A single query to search."),
			"queries": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		})),
	)
}

func fallback(query string) Result {
	return Result{
		Title:          "Research Result for " + query,
		Content:        fmt.Sprintf("Fallback: Information related to %s. Unable to fetch real search results.", query),
		Source:         FallbackSource,
		RelevanceScore: FallbackRelevance,
	}
}

// Rank orders results by relevance, drops duplicates and keeps the top n.
func Rank(results []Result, n int) []Result {
	ranked := make([]Result, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	// Fallback results share one source, so a hit is its source and title.
	seen := make(map[string]bool, len(ranked))
	out := make([]Result, 0, n)
	for _, r := range ranked {
		key := r.Source + "\x00" + r.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
		if len(out) == n {
			break
		}
	}
	return out
}

// FilterResults keeps the most relevant results of the session.
func FilterResults() tool.Tool {
	return tool.New(FilterResultsName, "Filters and ranks the collected results by relevance.",
		func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
			s, ok, err := Load(state)
			if err != nil {
				return nil, err
			}
			if !ok || len(s.AllResults) == 0 {
				return nil, errors.New("no research results to filter")
			}
			s.FilteredResults = Rank(s.AllResults, TopResults)
			if err := Save(state, s); err != nil {
				return nil, err
			}
			return map[string]any{"filtered_count": len(s.FilteredResults), "total_count": len(s.AllResults)}, nil
		})
}

// GenerateReport renders the filtered results as a markdown report.
func GenerateReport() tool.Tool {
	return tool.New(GenerateReportName, "Writes the research report from the filtered results.",
		func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
			s, ok, err := Load(state)
			if err != nil {
				return nil, err
			}
			if !ok || len(s.FilteredResults) == 0 {
				return nil, errors.New("no filtered results available for report generation")
			}
			s.FinalReport = Report(s.Topic, s.FilteredResults)
			if err := Save(state, s); err != nil {
				return nil, err
			}
			return map[string]any{"report": s.FinalReport, "sources_used": len(s.FilteredResults)}, nil
		})
}

// Report renders the report sections for topic.
func Report(topic string, results []Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", topic)

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "This report consolidates %d sources on %s.\n\n", len(results), topic)

	b.WriteString("## Key Findings\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- **%s**: %s\n", r.Title, firstSentence(r.Content))
	}

	b.WriteString("\n## Detailed Analysis\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%s [%d]\n\n", strings.TrimSpace(r.Content), i+1)
	}

	b.WriteString("## Conclusions\n\n")
	fmt.Fprintf(&b, "The sources above cover the background, current developments and open challenges of %s.\n\n", topic)

	b.WriteString("## Sources\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, r.Title, r.Source)
	}
	return b.String()
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}

// Progress reports the research session status.
func Progress() tool.Tool {
	return tool.New(ProgressName, "Reports the current research progress.",
		func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
			s, ok, err := Load(state)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New("no active research session")
			}
			return map[string]any{
				"topic":             s.Topic,
				"queries_generated": len(s.Queries),
				"total_results":     len(s.AllResults),
				"filtered_results":  len(s.FilteredResults),
				"report_ready":      s.FinalReport != "",
				"current_step":      s.Step(),
			}, nil
		})
}

// Tools returns the full research toolset over searcher.
func Tools(searcher Searcher, opts ...SearchOption) []tool.Tool {
	return []tool.Tool{
		GenerateQueries(),
		WebSearch(searcher, opts...),
		FilterResults(),
		GenerateReport(),
		Progress(),
	}
}
