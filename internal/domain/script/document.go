package script

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// binding exposes one surface to the VM
type binding struct {
	r  *Runtime
	vm *goja.Runtime
	s  *surface.Surface
}

// bind installs document and remote for s
func (r *Runtime) bind(s *surface.Surface) error {
	if s == nil {
		if err := r.vm.Set("document", goja.Undefined()); err != nil {
			return err
		}
		return r.vm.Set("remote", goja.Undefined())
	}

	b := &binding{r: r, vm: r.vm, s: s}

	document := b.vm.NewObject()
	if err := document.Set("root", b.proxy(s.Root())); err != nil {
		return err
	}
	if err := document.Set("uri", s.URI()); err != nil {
		return err
	}
	if err := document.Set("createElement", b.createElement); err != nil {
		return err
	}
	if err := document.Set("createTextNode", b.createTextNode); err != nil {
		return err
	}
	if err := document.Set("getNode", b.getNode); err != nil {
		return err
	}
	if err := b.vm.Set("document", document); err != nil {
		return err
	}

	remote := b.vm.NewObject()
	if err := remote.Set("call", b.call); err != nil {
		return err
	}
	return b.vm.Set("remote", remote)
}

func (b *binding) createElement(call goja.FunctionCall) goja.Value {
	tag := call.Argument(0)
	if goja.IsUndefined(tag) {
		panic(b.vm.NewTypeError("createElement requires a tag name"))
	}
	return b.proxy(b.s.CreateElement(tag.String()))
}

func (b *binding) createTextNode(call goja.FunctionCall) goja.Value {
	text := ""
	if arg := call.Argument(0); !goja.IsUndefined(arg) {
		text = arg.String()
	}
	return b.proxy(b.s.CreateText(text))
}

func (b *binding) getNode(call goja.FunctionCall) goja.Value {
	return b.proxy(tree.NodeID(call.Argument(0).String()))
}

func (b *binding) call(call goja.FunctionCall) goja.Value {
	method := call.Argument(0)
	if goja.IsUndefined(method) {
		panic(b.vm.NewTypeError("remote.call requires a method name"))
	}

	args := make([]any, 0, len(call.Arguments))
	for _, arg := range call.Arguments[1:] {
		args = append(args, b.r.exportValue(arg))
	}

	id := b.s.Call(method.String(), args...)
	b.r.calls = append(b.r.calls, id)
	return b.vm.ToValue(id)
}

// proxy returns a node object, or null when id names no live node
func (b *binding) proxy(id tree.NodeID) goja.Value {
	typ, err := b.s.Type(id)
	if err != nil {
		return goja.Null()
	}

	obj := b.vm.NewObject()
	set := func(name string, v any) {
		if err := obj.Set(name, v); err != nil {
			panic(b.vm.NewGoError(err))
		}
	}

	set("id", string(id))
	set("nodeType", int(typ))

	set("appendChild", func(call goja.FunctionCall) goja.Value {
		b.check(b.s.AppendChild(id, b.nodeArg(call, 0)))
		return call.Argument(0)
	})
	set("insertChild", func(call goja.FunctionCall) goja.Value {
		child := b.nodeArg(call, 0)
		b.check(b.s.InsertChild(id, child, int(call.Argument(1).ToInteger())))
		return call.Argument(0)
	})
	set("removeChild", func(call goja.FunctionCall) goja.Value {
		child := b.nodeArg(call, 0)
		children, err := b.s.Children(id)
		b.check(err)
		for i, c := range children {
			if c == child {
				b.check(b.s.RemoveChild(id, i))
				return call.Argument(0)
			}
		}
		panic(b.vm.NewGoError(fmt.Errorf("%s is not a child of %s: %w", child, id, tree.ErrHierarchy)))
	})
	set("removeChildAt", func(call goja.FunctionCall) goja.Value {
		b.check(b.s.RemoveChild(id, int(call.Argument(0).ToInteger())))
		return goja.Undefined()
	})
	set("setProperty", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		b.check(b.s.SetProperty(id, name, b.r.exportValue(call.Argument(1))))
		return goja.Undefined()
	})
	set("getProperty", func(call goja.FunctionCall) goja.Value {
		v, ok, err := b.s.Property(id, call.Argument(0).String())
		b.check(err)
		if !ok {
			return goja.Undefined()
		}
		return b.vm.ToValue(v)
	})
	set("setText", func(call goja.FunctionCall) goja.Value {
		b.check(b.s.UpdateText(id, call.Argument(0).String()))
		return goja.Undefined()
	})
	set("children", func(goja.FunctionCall) goja.Value {
		ids, err := b.s.Children(id)
		b.check(err)
		out := make([]any, len(ids))
		for i, c := range ids {
			out[i] = b.proxy(c)
		}
		return b.vm.NewArray(out...)
	})
	set("parent", func(goja.FunctionCall) goja.Value {
		parent, err := b.s.Parent(id)
		b.check(err)
		if parent == "" {
			return goja.Null()
		}
		return b.proxy(parent)
	})

	return obj
}

// nodeArg reads a node proxy or a bare id string
func (b *binding) nodeArg(call goja.FunctionCall, i int) tree.NodeID {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		panic(b.vm.NewTypeError("argument %d must be a node", i))
	}
	if obj, ok := v.(*goja.Object); ok {
		nodeID := obj.Get("id")
		if nodeID == nil || goja.IsUndefined(nodeID) {
			panic(b.vm.NewTypeError("argument %d must be a node", i))
		}
		return tree.NodeID(nodeID.String())
	}
	return tree.NodeID(v.String())
}

// check throws err into the script
func (b *binding) check(err error) {
	if err != nil {
		panic(b.vm.NewGoError(err))
	}
}
