// Package calculator provides arithmetic tools.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
)

// Tool names.
const (
	CalculateName = "calculate"
	EvaluateName  = "evaluate"
)

// ErrDivideByZero is the failure reason for a zero divisor.
var ErrDivideByZero = errors.New("divide by zero")

// Args are the arguments of the calculate tool.
type Args struct {
	Operation string   `json:"operation" validate:"required"`
	A         *float64 `json:"a" validate:"required"`
	B         *float64 `json:"b" validate:"required"`
}

// Calculate performs one of add, subtract, multiply or divide on a and b.
func Calculate() tool.Tool {
	return tool.Typed(CalculateName,
		"Performs basic arithmetic operations (add, subtract, multiply, divide) on two numbers.",
		func(ctx context.Context, in Args, state domain.State) (any, error) {
			return apply(strings.ToLower(strings.TrimSpace(in.Operation)), *in.A, *in.B)
		},
		tool.WithParameters(tool.Object(map[string]any{
			"operation": tool.Enum("The operation to perform.", "add", "subtract", "multiply", "divide"),
			"a":         tool.Property("number", "The first number."),
			"b":         tool.Property("number", "The second number."),
		}, "operation", "a", "b")),
	)
}

func apply(op string, a, b float64) (string, error) {
	var (
		result float64
		symbol string
	)
	switch op {
	case "add":
		result, symbol = a+b, "+"
	case "subtract":
		result, symbol = a-b, "-"
	case "multiply":
		result, symbol = a*b, "*"
	case "divide":
		if b == 0 {
			return "", ErrDivideByZero
		}
		result, symbol = a/b, "/"
	default:
		return "", fmt.Errorf("unknown operation '%s'. Please use add, subtract, multiply, or divide", op)
	}
	return fmt.Sprintf("%s %s %s = %s", format(a), symbol, format(b), format(result)), nil
}

// constants are available to expressions by name.
var constants = map[string]any{
	"pi":    math.Pi,
	"e":     math.E,
	"phi":   math.Phi,
	"sqrt2": math.Sqrt2,
	"ln2":   math.Ln2,
	"ln10":  math.Ln10,
}

var functions = map[string]govaluate.ExpressionFunction{
	"sqrt": unary(math.Sqrt),
	"abs":  unary(math.Abs),
	"sin":  unary(math.Sin),
	"cos":  unary(math.Cos),
	"tan":  unary(math.Tan),
	"log":  unary(math.Log),
	"pow": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, errors.New("pow expects 2 arguments")
		}
		x, ok1 := args[0].(float64)
		y, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, errors.New("pow expects numbers")
		}
		return math.Pow(x, y), nil
	},
}

func unary(fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("expected 1 argument")
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, errors.New("expected a number")
		}
		return fn(x), nil
	}
}

// ExprArgs are the arguments of the evaluate tool.
type ExprArgs struct {
	Expression string         `json:"expression" validate:"required"`
	Params     map[string]any `json:"params"`
}

// Evaluate computes a mathematical expression such as "2 * (3 + 4)".
func Evaluate() tool.Tool {
	return tool.Typed(EvaluateName,
		"Evaluates a mathematical expression, e.g. '2 * (3 + 4)' or 'sqrt(16) + pi'.",
		func(ctx context.Context, in ExprArgs, state domain.State) (any, error) {
			return evaluate(in.Expression, in.Params)
		},
		tool.WithParameters(tool.Object(map[string]any{
			"expression": tool.Property("string", "Mathematical expression to evaluate."),
			"params":     tool.Property("object", "Named parameters used by the expression."),
		}, "expression")),
	)
}

func evaluate(expression string, params map[string]any) (string, error) {
	exp, err := govaluate.NewEvaluableExpressionWithFunctions(expression, functions)
	if err != nil {
		return "", fmt.Errorf("invalid expression: %w", err)
	}

	merged := make(map[string]any, len(params)+len(constants))
	for k, v := range constants {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}

	value, err := exp.Evaluate(merged)
	if err != nil {
		return "", fmt.Errorf("evaluation failed: %w", err)
	}

	switch v := value.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			if strings.Contains(expression, "/") {
				return "", ErrDivideByZero
			}
			return "", errors.New("result is not a finite number")
		}
		return fmt.Sprintf("%s = %s", strings.TrimSpace(expression), format(v)), nil
	case bool:
		return fmt.Sprintf("%s = %t", strings.TrimSpace(expression), v), nil
	default:
		return fmt.Sprintf("%s = %v", strings.TrimSpace(expression), v), nil
	}
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
