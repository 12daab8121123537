package evaluator

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/dop251/goja"
)

// JSName is the registry key of the JavaScript evaluator.
const JSName = "js"

// JSEvaluator runs a user script that defines a global function
// evaluate(counter). The function may return:
//
//	a boolean            match without payload
//	a non-empty string   match, the string is the payload
//	null / undefined     no match
//	{matched, payload}   explicit verdict
//
// The globals target and seed carry the configured values.
type JSEvaluator struct {
	vm *goja.Runtime
	fn goja.Callable
}

// NewJS loads cfg.Script and resolves its evaluate function.
func NewJS(cfg Config) (Evaluator, error) {
	if cfg.Script == "" {
		return nil, errors.New("script path is required")
	}
	src, err := os.ReadFile(cfg.Script)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return NewJSFromSource(cfg.Script, string(src), cfg)
}

// NewJSFromSource compiles src (named name in stack traces) into an evaluator.
func NewJSFromSource(name, src string, cfg Config) (*JSEvaluator, error) {
	vm := goja.New()
	if err := vm.Set("target", cfg.Target); err != nil {
		return nil, fmt.Errorf("set target: %w", err)
	}
	if err := vm.Set("seed", cfg.Seed); err != nil {
		return nil, fmt.Errorf("set seed: %w", err)
	}
	if _, err := vm.RunScript(name, src); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get("evaluate"))
	if !ok {
		return nil, errors.New("script does not define function evaluate(counter)")
	}
	return &JSEvaluator{vm: vm, fn: fn}, nil
}

// Name returns JSName.
func (e *JSEvaluator) Name() string { return JSName }

// Evaluate implements Evaluator.
func (e *JSEvaluator) Evaluate(counter uint64) (bool, string, error) {
	if counter > math.MaxInt64 {
		return false, "", fmt.Errorf("counter %d exceeds the script integer range", counter)
	}
	res, err := e.fn(goja.Undefined(), e.vm.ToValue(int64(counter)))
	if err != nil {
		return false, "", fmt.Errorf("evaluate(%d): %w", counter, err)
	}
	return verdict(res)
}

func verdict(v goja.Value) (bool, string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false, "", nil
	}
	switch x := v.Export().(type) {
	case bool:
		return x, "", nil
	case string:
		return x != "", x, nil
	case map[string]any:
		matched, _ := x["matched"].(bool)
		payload := ""
		if p, ok := x["payload"]; ok && p != nil {
			payload = fmt.Sprint(p)
		}
		return matched, payload, nil
	default:
		return false, "", fmt.Errorf("evaluate returned unsupported %T", x)
	}
}
