package apps

import (
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/femto/minion-novel/pkg/tools/calculator"
	"github.com/femto/minion-novel/pkg/tools/greeting"
	"github.com/femto/minion-novel/pkg/tools/recall"
	"github.com/femto/minion-novel/pkg/tools/research"
	"github.com/femto/minion-novel/pkg/tools/weather"
)

// ToolRegistry returns every built-in tool, for apps declared in
// definition files. load_memory is only present when deps.Store is set.
func ToolRegistry(deps Deps) *tool.Registry {
	reg := tool.NewRegistry(
		greeting.Hello(),
		greeting.Goodbye(),
		calculator.Calculate(),
		calculator.Evaluate(),
		weather.New(nil),
		research.GenerateQueries(),
		searchTool(deps),
		research.FilterResults(),
		research.GenerateReport(),
		research.Progress(),
	)
	if deps.Store != nil {
		reg.Register(recall.New(deps.Store))
	}
	return reg
}

// searchTool builds the web_search tool from deps, throttled when a
// limiter is configured.
func searchTool(deps Deps) tool.Tool {
	searcher := deps.Searcher
	if searcher == nil {
		searcher = offlineSearcher()
	}
	var opts []research.SearchOption
	if deps.Logger != nil {
		opts = append(opts, research.WithLogger(deps.Logger))
	}
	if deps.MaxResults > 0 {
		opts = append(opts, research.WithMaxResults(deps.MaxResults))
	}
	search := research.WebSearch(searcher, opts...)
	if deps.SearchLimiter != nil {
		search = tool.RateLimited(search, deps.SearchLimiter)
	}
	return search
}
