package apps

import (
	"strings"

	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/tools/calculator"
)

// Calculator app names.
const (
	CalculatorApp      = "calculator"
	CalculatorRoot     = "calculator_agent"
	KeyLastCalculation = "last_calculation"
)

const calculatorHelp = "I can add, subtract, multiply or divide two numbers (\"add 2 and 3\", \"10 / 4\") or evaluate an expression (\"what is 2*(3+4)\")."

const number = `(-?\d+(?:\.\d+)?)`

var symbolOps = map[string]string{"+": "add", "-": "subtract", "*": "multiply", "x": "multiply", "/": "divide"}

// Calculator answers arithmetic requests with the calculate and evaluate tools.
func Calculator(Deps) (App, error) {
	help := agent.Answer(calculatorHelp)
	root, err := agent.NewNode(CalculatorRoot,
		agent.WithDescription("A helpful calculator agent that performs basic arithmetic operations."),
		agent.WithInstruction("Use the calculator tools for any arithmetic and report the result."),
		agent.WithTools(calculator.Calculate(), calculator.Evaluate()),
		agent.WithOutputKey(KeyLastCalculation),
		agent.WithPolicy(&agent.RoutingPolicy{
			Routes: []agent.Route{
				{
					Name:  "binary",
					Match: agent.MustRegex(`^\s*(?:what is|what's|calculate|compute)?\s*` + number + `\s*([-+*/x])\s*` + number + `\s*[?=]?\s*$`),
					Action: agent.Action{Tool: calculator.CalculateName, Args: func(_ string, g []string) map[string]any {
						return map[string]any{"operation": symbolOps[strings.ToLower(g[2])], "a": g[1], "b": g[3]}
					}},
				},
				{
					Name:  "words",
					Match: agent.MustRegex(`\b(add|subtract|multiply|divide)\s+` + number + `\s+(and|by|from|to|with)\s+` + number),
					Action: agent.Action{Tool: calculator.CalculateName, Args: wordArgs},
				},
				{
					Name:  "expression",
					Match: agent.MustRegex(`^\s*(?:what is|what's|calculate|compute|evaluate)\s+([-+*/%^().\d\s\w,]+?)\s*[?=]?\s*$`),
					Action: agent.Action{Tool: calculator.EvaluateName, Args: func(_ string, g []string) map[string]any {
						return map[string]any{"expression": g[1]}
					}},
				},
			},
			Fallback: &help,
		}),
	)
	if err != nil {
		return App{}, err
	}
	return App{
		Name:        CalculatorApp,
		Description: "Arithmetic assistant backed by the calculate and evaluate tools.",
		Root:        root,
	}, nil
}

// wordArgs maps "subtract 3 from 10" to 10 - 3 and "add 2 to 5" to 5 + 2.
func wordArgs(_ string, g []string) map[string]any {
	op, a, conn, b := strings.ToLower(g[1]), g[2], strings.ToLower(g[3]), g[4]
	if conn == "from" || (conn == "to" && op == "add") {
		a, b = b, a
	}
	return map[string]any{"operation": op, "a": a, "b": b}
}
