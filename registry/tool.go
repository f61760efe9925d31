package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/relaykit/relaykit/protocol"
	"github.com/relaykit/relaykit/schema"
)

// Tool is a callable capability. The handler is a plain function whose
// input struct doubles as the source of the tool's parameter schema.
type Tool struct {
	name        string
	description string
	inputType   reflect.Type
	inputSchema *schema.Schema
	rawInput    bool
	handler     any
	hasContext  bool
}

// ToolOption configures a Tool at construction.
type ToolOption func(*Tool)

// WithRawArguments skips schema validation of call arguments. The handler
// sees whatever json.Unmarshal produces, zero values included.
func WithRawArguments() ToolOption {
	return func(t *Tool) { t.rawInput = true }
}

// NewTool builds a tool from a handler function. Accepted signatures:
//
//	func(input T) (R, error)
//	func(ctx context.Context, input T) (R, error)
//
// The parameter schema is generated from T's fields and json tags.
func NewTool(name, description string, handler any, opts ...ToolOption) (*Tool, error) {
	t := &Tool{
		name:        name,
		description: description,
		handler:     handler,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.inspectHandler(); err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	return t, nil
}

func (t *Tool) inspectHandler() error {
	fnType := reflect.TypeOf(t.handler)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %v", fnType)
	}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return fmt.Errorf("handler must take 1 or 2 parameters, got %d", numIn)
	}

	inputIdx := 0
	if numIn == 2 {
		ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
		if !fnType.In(0).Implements(ctxType) {
			return fmt.Errorf("first of two parameters must be context.Context")
		}
		t.hasContext = true
		inputIdx = 1
	}

	inputType := fnType.In(inputIdx)
	if inputType.Kind() == reflect.Ptr {
		inputType = inputType.Elem()
	}
	t.inputType = inputType

	generated, err := schema.GenerateFromType(inputType)
	if err != nil {
		return fmt.Errorf("generate input schema: %w", err)
	}
	t.inputSchema = generated

	if fnType.NumOut() != 2 {
		return fmt.Errorf("handler must return (result, error), got %d values", fnType.NumOut())
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if !fnType.Out(1).Implements(errType) {
		return fmt.Errorf("handler's second return value must be error")
	}
	return nil
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.name }

// Description returns the tool description.
func (t *Tool) Description() string { return t.description }

// InputSchema returns the generated parameter schema.
func (t *Tool) InputSchema() *schema.Schema { return t.inputSchema }

// Execute decodes args into the handler's input type and invokes it.
// Validation failures and undecodable args surface as invalid-params or
// missing-parameter errors; the handler never runs for them.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	if !t.rawInput && t.inputSchema != nil {
		if err := t.inputSchema.Validate(args); err != nil {
			return nil, asProtocolError(err)
		}
	}

	inputPtr := reflect.New(t.inputType)
	if err := json.Unmarshal(args, inputPtr.Interface()); err != nil {
		return nil, protocol.NewInvalidParams(fmt.Sprintf("decode arguments: %v", err))
	}

	fnVal := reflect.ValueOf(t.handler)
	callArgs := make([]reflect.Value, 0, 2)
	if t.hasContext {
		callArgs = append(callArgs, reflect.ValueOf(ctx))
	}
	callArgs = append(callArgs, inputPtr.Elem())

	results := fnVal.Call(callArgs)
	if errVal := results[1].Interface(); errVal != nil {
		return nil, errVal.(error)
	}
	return results[0].Interface(), nil
}

// asProtocolError maps validation failures onto the wire taxonomy: an
// absent required field is a missing-parameter error, anything else is
// invalid-params.
func asProtocolError(err error) error {
	var verrs schema.ValidationErrors
	if errors.As(err, &verrs) {
		for _, verr := range verrs {
			if verr.Missing {
				return protocol.NewMissingParameter(verr.Path)
			}
		}
	}
	return protocol.NewInvalidParams(err.Error())
}
