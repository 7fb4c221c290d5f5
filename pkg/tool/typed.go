package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// TypedFunc is a tool body receiving decoded, validated arguments.
type TypedFunc[In any] func(ctx context.Context, in In, state domain.State) (any, error)

// Typed creates a Tool whose arguments are decoded into In with mapstructure
// (weakly typed, so "10" decodes into a number) and checked with the
// `validate` struct tags. Decoding or validation errors become Failures.
func Typed[In any](name, description string, fn TypedFunc[In], opts ...Option) *Func {
	handler := func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		in, err := Decode[In](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in, state)
	}
	return New(name, description, handler, opts...)
}

// Decode converts raw arguments into In and validates it.
func Decode[In any](args map[string]any) (In, error) {
	var in In
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return in, err
	}
	if err := decoder.Decode(args); err != nil {
		return in, fmt.Errorf("invalid arguments: %w", err)
	}

	if err := validate.Struct(in); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// Non-struct inputs carry no validation tags.
			return in, nil
		}
		return in, fmt.Errorf("invalid arguments: %s", describe(err))
	}
	return in, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
