package server

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/meng-cz/vulsim-rpc/message"
)

// A backend method is any exported method on the registered receiver with
// the signature:
//
//	func (s *Svc) MethodName(args []message.Arg) message.Response
//
// The wire method name is the Go name lower-cased, qualified by the service
// name when one was given: ConfigLib.Listref registered as "configlib"
// answers "configlib.listref".

var (
	argsType     = reflect.TypeOf([]message.Arg(nil))
	responseType = reflect.TypeOf(message.Response(nil))
)

type service struct {
	name   string
	rcvr   reflect.Value
	method map[string]reflect.Method
}

func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		method: make(map[string]reflect.Method),
	}
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		// Expected shape: (receiver, []message.Arg) message.Response
		if m.Type.NumIn() != 2 || m.Type.NumOut() != 1 {
			continue
		}
		if m.Type.In(1) != argsType || m.Type.Out(0) != responseType {
			continue
		}
		svc.method[strings.ToLower(m.Name)] = m
	}
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("server: receiver %s exposes no backend methods", typ.Elem().Name())
	}
	return svc, nil
}

func (s *service) call(methodName string, args []message.Arg) message.Response {
	m, ok := s.method[methodName]
	if !ok {
		full := methodName
		if s.name != "" {
			full = s.name + "." + methodName
		}
		return message.Errorf(-2, "unknown method: %s", full)
	}
	out := m.Func.Call([]reflect.Value{s.rcvr, reflect.ValueOf(args)})
	resp, _ := out[0].Interface().(message.Response)
	if resp == nil {
		resp = message.Errorf(-1, "empty response from handler")
	}
	return resp
}

// splitMethod separates "configlib.add" into service and method parts.
// Bare names like "load" belong to the root service (empty name).
func splitMethod(full string) (svcName, methodName string) {
	if i := strings.LastIndex(full, "."); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "", full
}
