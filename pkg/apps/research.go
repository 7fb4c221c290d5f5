package apps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/femto/minion-novel/pkg/tools/research"
)

// Research app names and state keys.
const (
	ResearchApp         = "research"
	ResearchPipeline    = "research_pipeline"
	KeyResearchQueries  = "research_queries"
	KeyResearchResults  = "research_results"
	KeyResearchAnalysis = "research_analysis"
	KeyResearchReport   = "research_report"
)

var topicPrefix = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:research|investigate|tell me about|find out about|look into|report on)\s+`)

// ResearchTopic strips request phrasing from a research message.
func ResearchTopic(message string) string {
	topic := topicPrefix.ReplaceAllString(message, "")
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(topic), "?.!"))
}

func offlineSearcher() research.Searcher {
	return research.SearcherFunc(func(context.Context, string, int) ([]research.Result, error) {
		return nil, research.ErrNoAPIKey
	})
}

// Research is the deep research pipeline: generate queries, search, filter
// and rank, then write the report.
func Research(deps Deps) (App, error) {
	search := searchTool(deps)

	step := func(name, desc, key string, t tool.Tool, args agent.ArgsFunc, format agent.Formatter) (*agent.Node, error) {
		return agent.NewNode(name,
			agent.WithDescription(desc),
			agent.WithTools(t),
			agent.WithOutputKey(key),
			agent.WithPolicy(&agent.RoutingPolicy{
				Routes:    []agent.Route{{Name: t.Name(), Match: agent.Always(), Action: agent.Action{Tool: t.Name(), Args: args}}},
				AfterTool: format,
			}),
		)
	}

	queries, err := step("query_generator", "Generates research queries for the topic.", KeyResearchQueries,
		research.GenerateQueries(),
		func(msg string, _ []string) map[string]any { return map[string]any{"topic": ResearchTopic(msg)} },
		func(ex agent.Exchange) string {
			data, _ := ex.Result.Data.(map[string]any)
			qs, _ := data["queries"].([]string)
			return "Research queries:\n- " + strings.Join(qs, "\n- ")
		})
	if err != nil {
		return App{}, err
	}

	searcherNode, err := step("searcher", "Searches the web for every query.", KeyResearchResults,
		search, nil,
		func(ex agent.Exchange) string {
			data, _ := ex.Result.Data.(map[string]any)
			return fmt.Sprintf("Collected %v search results.", data["count"])
		})
	if err != nil {
		return App{}, err
	}

	analyst, err := step("analyst", "Filters and ranks the results by relevance.", KeyResearchAnalysis,
		research.FilterResults(), nil,
		func(ex agent.Exchange) string {
			data, _ := ex.Result.Data.(map[string]any)
			return fmt.Sprintf("Kept the %v most relevant of %v results.", data["filtered_count"], data["total_count"])
		})
	if err != nil {
		return App{}, err
	}

	reporter, err := step("reporter", "Writes the final research report.", KeyResearchReport,
		research.GenerateReport(), nil, agent.FormatResult)
	if err != nil {
		return App{}, err
	}

	pipeline, err := agent.NewPipeline(ResearchPipeline, []agent.Stage{
		{Agent: queries},
		{Agent: searcherNode, Reads: []string{research.KeySession}},
		{Agent: analyst, Reads: []string{research.KeySession}},
		{Agent: reporter, Reads: []string{research.KeySession}},
	}, agent.WithPipelineDescription("Deep research: queries, web search, ranking and report."))
	if err != nil {
		return App{}, err
	}

	return App{
		Name:        ResearchApp,
		Description: "Deep research pipeline producing a markdown report.",
		Root:        pipeline,
	}, nil
}
