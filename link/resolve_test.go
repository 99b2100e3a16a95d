package link

import (
	"testing"

	"github.com/mattnappo/efa/code"
)

func TestResolveLinksKnownNames(t *testing.T) {
	double := &code.CodeObject{
		Argcount:   1,
		LocalNames: []string{"x0"},
		Litpool:    []code.Value{code.I32(2)},
		Code: []code.Instr{
			{Op: code.OpLoadArg, Arg: 0},
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpMul},
			{Op: code.OpReturnVal},
		},
	}
	main := &code.CodeObject{
		Litpool: []code.Value{code.I32(21)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpLoadDyn, Name: "double"},
			{Op: code.OpCall},
			{Op: code.OpReturnVal},
		},
	}
	objs := map[string]*code.CodeObject{"main": main, "double": double}

	out, err := Resolve(objs)
	if err != nil {
		t.Fatal(err)
	}
	rmain := out["main"]
	found := false
	for _, in := range rmain.Code {
		if in.Op == code.OpLoadFunc {
			found = true
			if in.Hash != out["double"].Hash() {
				t.Error("main's LoadFunc hash does not match the linked double's hash")
			}
		}
		if in.Op == code.OpLoadDyn {
			t.Error("expected LoadDyn to be rewritten to LoadFunc")
		}
	}
	if !found {
		t.Error("expected a LoadFunc instruction in resolved main")
	}
}

func TestResolveLeavesUnknownNamesDynamic(t *testing.T) {
	main := &code.CodeObject{
		Code: []code.Instr{
			{Op: code.OpLoadDyn, Name: "elsewhere"},
			{Op: code.OpCall},
			{Op: code.OpReturn},
		},
	}
	out, err := Resolve(map[string]*code.CodeObject{"main": main})
	if err != nil {
		t.Fatal(err)
	}
	if out["main"].Code[0].Op != code.OpLoadDyn {
		t.Error("expected LoadDyn targeting a name outside the input set to remain LoadDyn")
	}
}

func TestResolveCycleFails(t *testing.T) {
	a := &code.CodeObject{Code: []code.Instr{
		{Op: code.OpLoadDyn, Name: "b"}, {Op: code.OpCall}, {Op: code.OpReturn},
	}}
	b := &code.CodeObject{Code: []code.Instr{
		{Op: code.OpLoadDyn, Name: "a"}, {Op: code.OpCall}, {Op: code.OpReturn},
	}}
	if _, err := Resolve(map[string]*code.CodeObject{"a": a, "b": b}); err == nil {
		t.Error("expected a cycle error for mutually-dependent functions")
	}
}

func TestResolveCallSelfIsNotACycle(t *testing.T) {
	fib := &code.CodeObject{
		Argcount: 1,
		Code: []code.Instr{
			{Op: code.OpLoadArg, Arg: 0},
			{Op: code.OpCallSelf},
			{Op: code.OpReturnVal},
		},
	}
	if _, err := Resolve(map[string]*code.CodeObject{"fib": fib}); err != nil {
		t.Errorf("CallSelf recursion incorrectly flagged as a cycle: %v", err)
	}
}
