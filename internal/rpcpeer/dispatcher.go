package rpcpeer

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	ftlerrors "github.com/alxayo/ftl-go/internal/errors"
)

// adaptor is the internal call shape every bound function is normalised to,
// regardless of its original arity/return signature. This plays the role of
// the C++ original's compile-time-generated adaptor_type, built here at
// Bind time via reflection instead of template instantiation — arity and
// void/nonvoid-result and with/without-peer-reference are all inspected off
// of the bound function's reflect.Type rather than four template tag types.
type adaptor func(p *Peer, args []any) (any, error)

var errType = reflect.TypeOf((*error)(nil)).Elem()
var peerPtrType = reflect.TypeOf((*Peer)(nil))

// Dispatcher is a name-keyed table of bound RPC handlers. An optional
// parent is consulted when a name is unbound locally, so a universe-wide
// dispatcher can be shared as every peer's fallback.
type Dispatcher struct {
	mu     sync.RWMutex
	funcs  map[string]adaptor
	parent *Dispatcher
}

// NewDispatcher constructs a Dispatcher, optionally chained to parent.
func NewDispatcher(parent *Dispatcher) *Dispatcher {
	return &Dispatcher{funcs: make(map[string]adaptor), parent: parent}
}

// Bind associates name with fn. fn's signature must be one of:
//
//	func()                          func(*Peer)
//	func() R                        func(*Peer) R
//	func() error                    func(*Peer) error
//	func() (R, error)               func(*Peer) (R, error)
//	func(A, B, ...)                 func(*Peer, A, B, ...)
//	... and the R / error variants of the above.
//
// Bind panics on an unsupported shape — this is a programmer error, always
// caught in a package's own tests, never a runtime/protocol condition.
func (d *Dispatcher) Bind(name string, fn any) {
	a := adapt(fn)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[name] = a
}

// Unbind removes a previously bound name. No-op if unbound.
func (d *Dispatcher) Unbind(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.funcs, name)
}

// IsBound reports whether name resolves locally or via the parent chain.
func (d *Dispatcher) IsBound(name string) bool {
	_, ok := d.locate(name)
	return ok
}

// Bindings returns every bound name visible from this dispatcher (local
// names only, not the parent's — matching the original's getBindings()).
func (d *Dispatcher) Bindings() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.funcs))
	for name := range d.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) locate(name string) (adaptor, bool) {
	d.mu.RLock()
	a, ok := d.funcs[name]
	d.mu.RUnlock()
	if ok {
		return a, true
	}
	if d.parent != nil {
		return d.parent.locate(name)
	}
	return nil, false
}

// Dispatch resolves name (falling back to the parent dispatcher) and
// invokes it with args, returning the adaptor's (result, error). An unbound
// name yields a kRPCResponse-classified error.
func (d *Dispatcher) Dispatch(p *Peer, name string, args []any) (any, error) {
	a, ok := d.locate(name)
	if !ok {
		return nil, ftlerrors.NewRuntimeError(ftlerrors.KindRPCResponse, "dispatcher.dispatch", fmt.Errorf("unbound rpc name %q", name))
	}
	return a(p, args)
}

// adapt builds an adaptor from fn's reflected signature.
func adapt(fn any) adaptor {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		panic(fmt.Sprintf("rpcpeer: Bind requires a func, got %T", fn))
	}

	takesPeer := t.NumIn() > 0 && t.In(0) == peerPtrType
	argStart := 0
	if takesPeer {
		argStart = 1
	}
	argTypes := make([]reflect.Type, 0, t.NumIn()-argStart)
	for i := argStart; i < t.NumIn(); i++ {
		argTypes = append(argTypes, t.In(i))
	}

	hasResult := false
	hasError := false
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errType {
			hasError = true
		} else {
			hasResult = true
		}
	case 2:
		hasResult = true
		if t.Out(1) != errType {
			panic("rpcpeer: Bind requires the second return value to be error")
		}
		hasError = true
	default:
		panic("rpcpeer: Bind supports at most (result, error) return values")
	}

	return func(p *Peer, args []any) (any, error) {
		if len(args) != len(argTypes) {
			return nil, ftlerrors.NewRuntimeError(ftlerrors.KindRPCResponse, "dispatcher.arity",
				fmt.Errorf("expected %d args, got %d", len(argTypes), len(args)))
		}

		in := make([]reflect.Value, 0, t.NumIn())
		if takesPeer {
			in = append(in, reflect.ValueOf(p))
		}
		for i, want := range argTypes {
			rv, err := coerce(args[i], want)
			if err != nil {
				return nil, ftlerrors.NewRuntimeError(ftlerrors.KindRPCResponse, "dispatcher.coerce", err)
			}
			in = append(in, rv)
		}

		out := v.Call(in)
		var result any
		var callErr error
		idx := 0
		if hasResult {
			result = out[idx].Interface()
			idx++
		}
		if hasError {
			if e, ok := out[idx].Interface().(error); ok {
				callErr = e
			}
		}
		return result, callErr
	}
}

// coerce converts a decoded wire value (nil/bool/int64/float64/string/
// []byte/[]any/map[string]any) into want, covering the numeric-width and
// interface-typed cases a bound Go function signature commonly needs.
func coerce(v any, want reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(want), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(want) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(want) {
		switch want.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
			return rv.Convert(want), nil
		}
	}
	if want.Kind() == reflect.Interface && rv.Type().Implements(want) {
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", v, want)
}
