package challenge

import (
	"context"
	"errors"

	"github.com/robertkrimen/otto"
)

var errOttoHalt = errors.New("evaluation interrupted")

func evalOtto(ctx context.Context, param, body, input string) (out string, err error) {
	vm := otto.New()
	if err := vm.Set("console", otto.UndefinedValue()); err != nil {
		return "", err
	}
	vm.Interrupt = make(chan func(), 1)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt <- func() { panic(errOttoHalt) }
		case <-done:
		}
	}()

	defer func() {
		if caught := recover(); caught != nil {
			if caught == errOttoHalt {
				err = errors.Join(errOttoHalt, ctx.Err())
				return
			}
			panic(caught)
		}
	}()

	ctor, err := vm.Get("Function")
	if err != nil {
		return "", err
	}
	fn, err := ctor.Call(otto.NullValue(), param, body)
	if err != nil {
		return "", err
	}
	if !fn.IsFunction() {
		return "", errors.New("compiled transform is not callable")
	}

	res, err := fn.Call(otto.UndefinedValue(), input)
	if err != nil {
		return "", err
	}
	if res.IsUndefined() || res.IsNull() {
		return "", errUndefined
	}
	if !res.IsString() {
		return "", errNotString
	}
	return res.String(), nil
}
