package challenge

import (
	"context"
	"errors"

	"github.com/dop251/goja"
)

func evalGoja(ctx context.Context, param, body, input string) (string, error) {
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	ctor, ok := goja.AssertFunction(vm.Get("Function"))
	if !ok {
		return "", errors.New("Function constructor unavailable")
	}
	fnObj, err := ctor(goja.Undefined(), vm.ToValue(param), vm.ToValue(body))
	if err != nil {
		return "", err
	}
	fn, ok := goja.AssertFunction(fnObj)
	if !ok {
		return "", errors.New("compiled transform is not callable")
	}

	res, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return "", err
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return "", errUndefined
	}
	out, ok := res.Export().(string)
	if !ok {
		return "", errNotString
	}
	return out, nil
}
