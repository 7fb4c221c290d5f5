// Package recall provides load_memory, a tool that searches the conversation
// history of the current user's other sessions.
package recall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/femto/minion-novel/pkg/tool"
)

// Name is the tool name.
const Name = "load_memory"

// DefaultLimit bounds the returned memories.
const DefaultLimit = 5

// Memory is one matching event from a past session.
type Memory struct {
	SessionID string
	Author    string
	Text      string
	Timestamp time.Time
}

// Args are the arguments of load_memory.
type Args struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit"`
}

// New creates the load_memory tool over store. The current session key is
// read from the context, so the tool only works inside a runner turn.
func New(store ports.SessionStore) tool.Tool {
	return tool.Typed(Name, "Searches earlier conversations with this user for the given words.",
		func(ctx context.Context, in Args, _ domain.State) (any, error) {
			key, ok := session.KeyFromContext(ctx)
			if !ok {
				return nil, errors.New("no active session")
			}
			limit := in.Limit
			if limit <= 0 {
				limit = DefaultLimit
			}

			memories, err := Search(ctx, store, key, in.Query, limit)
			if err != nil {
				return nil, err
			}

			out := make([]any, 0, len(memories))
			for _, m := range memories {
				out = append(out, map[string]any{
					"session_id": m.SessionID,
					"author":     m.Author,
					"text":       m.Text,
					"timestamp":  m.Timestamp.Format(time.RFC3339),
				})
			}
			return map[string]any{"memories": out, "count": len(out)}, nil
		},
		tool.WithParameters(tool.Object(map[string]any{
			"query": tool.Property("string", "Words to look for."),
			"limit": tool.Property("integer", "Maximum number of memories."),
		}, "query")),
	)
}

// Search scans the other sessions of key's app and user for events whose
// text contains any word of query. Newest matches come first.
func Search(ctx context.Context, store ports.SessionStore, key domain.SessionKey, query string, limit int) ([]Memory, error) {
	words := tokenize(query)
	if len(words) == 0 {
		return nil, nil
	}

	keys, err := store.List(ctx, ports.ListFilter{AppName: key.AppName, UserID: key.UserID})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var found []Memory
	for _, k := range keys {
		if k.SessionID == key.SessionID {
			continue
		}
		s, err := store.Load(ctx, k)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", k, err)
		}
		for _, ev := range s.Events {
			if ev.Text == "" || !(ev.Kind == domain.EventUserMessage || ev.Kind.Terminal()) {
				continue
			}
			if matches(ev.Text, words) {
				found = append(found, Memory{SessionID: k.SessionID, Author: ev.Author, Text: ev.Text, Timestamp: ev.Timestamp})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Timestamp.After(found[j].Timestamp)
	})
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func matches(text string, words []string) bool {
	have := make(map[string]bool)
	for _, w := range tokenize(text) {
		have[w] = true
	}
	for _, w := range words {
		if have[w] {
			return true
		}
	}
	return false
}
