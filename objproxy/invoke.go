package objproxy

import (
	"context"
	"reflect"
)

var (
	errType = reflect.TypeOf((*error)(nil)).Elem()
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// invokeLocal dispatches methodName on instance via reflection, the same way
// a generated server-side stub would dispatch an incoming call. args are
// matched positionally against the method's parameters; a context.Context
// parameter is satisfied like any other argument -- a cancellation token
// decoded from the wire already arrives in args as a context.Context in the
// matching slot, so no separate context threading is needed here. When args
// holds one more value than the method takes, args[0] is a context.Context
// (the ctx Proxy.Invoke prepends) and the method's first parameter is not a
// context.Context, that leading context is dropped.
func invokeLocal(instance interface{}, methodName string, args []interface{}) (interface{}, error) {
	v := reflect.ValueOf(instance)
	m := v.MethodByName(methodName)
	if !m.IsValid() {
		return nil, wrapf(ErrMethodResolution, "type %T has no method %q", instance, methodName)
	}
	mt := m.Type()
	if len(args) == mt.NumIn()+1 {
		if _, isCtx := args[0].(context.Context); isCtx && (mt.NumIn() == 0 || mt.In(0) != ctxType) {
			args = args[1:]
		}
	}
	if mt.NumIn() != len(args) {
		return nil, wrapf(ErrMethodResolution, "%s: expected %d arguments, got %d", methodName, mt.NumIn(), len(args))
	}

	in := make([]reflect.Value, mt.NumIn())
	for i := range in {
		in[i] = coerceArg(args[i], mt.In(i))
	}

	out := m.Call(in)
	return splitResults(out)
}

// coerceArg adapts a decoded value to the reflected parameter type it must
// be assigned to -- most commonly turning a decoded int64/float64 into the
// exact sized numeric type a handler declares, since the wire tags carry
// more precision about width than any single Go numeric type would.
func coerceArg(arg interface{}, want reflect.Type) reflect.Value {
	if arg == nil {
		return reflect.Zero(want)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want)
	}
	return v
}

// splitResults normalizes a reflected method's return values into the
// (value, error) shape the wire protocol's ReturnValue/ReturnException
// distinction expects.
func splitResults(out []reflect.Value) (interface{}, error) {
	var result interface{}
	var callErr error
	for _, rv := range out {
		if rv.Type().Implements(errType) || rv.Type() == errType {
			if !rv.IsNil() {
				callErr = rv.Interface().(error)
			}
			continue
		}
		result = rv.Interface()
	}
	return result, callErr
}
