package vm

import (
	"testing"

	"github.com/mattnappo/efa/code"
	"github.com/pkg/errors"
)

// fakeStore is a minimal in-memory codeStore for white-box engine tests
// that do not need a real database.
type fakeStore struct {
	objs  map[code.Hash]*code.CodeObject
	names map[string]code.Hash
}

func newFakeStore() *fakeStore {
	return &fakeStore{objs: map[code.Hash]*code.CodeObject{}, names: map[string]code.Hash{}}
}

func (s *fakeStore) put(obj *code.CodeObject) code.Hash {
	h := obj.Hash()
	s.objs[h] = obj
	return h
}

func (s *fakeStore) bind(name string, h code.Hash) { s.names[name] = h }

func (s *fakeStore) GetByHash(h code.Hash) (*code.CodeObject, error) {
	obj, ok := s.objs[h]
	if !ok {
		return nil, errors.Errorf("fakeStore: no object %s", h)
	}
	return obj, nil
}

func (s *fakeStore) GetByName(name string) (code.Hash, *code.CodeObject, error) {
	h, ok := s.names[name]
	if !ok {
		return code.Hash{}, nil, errors.Errorf("fakeStore: no name %q", name)
	}
	obj, err := s.GetByHash(h)
	return h, obj, err
}

func (s *fakeStore) GetMain() (code.Hash, *code.CodeObject, error) {
	return s.GetByName("main")
}

func TestRunLoadLitReturnVal(t *testing.T) {
	obj := &code.CodeObject{
		Litpool: []code.Value{code.I32(13)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpReturnVal},
		},
	}
	i, err := New(newFakeStore())
	if err != nil {
		t.Fatal(err)
	}
	got, err := i.Run(obj)
	if err != nil {
		t.Fatal(err)
	}
	if got != 13 {
		t.Errorf("got %d, want 13", got)
	}
}

func TestRunImplicitVoidReturn(t *testing.T) {
	obj := &code.CodeObject{Code: []code.Instr{{Op: code.OpNop}}}
	i, _ := New(newFakeStore())
	got, err := i.Run(obj)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestRunMainMustReturnI32(t *testing.T) {
	obj := &code.CodeObject{
		Litpool: []code.Value{code.String("hi")},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpReturnVal},
		},
	}
	i, _ := New(newFakeStore())
	if _, err := i.Run(obj); err == nil {
		t.Error("expected an error returning a non-i32 from the top-level frame")
	}
}

// TestCallArgBindingOrder exercises the rule that Call pops argcount values
// off the caller's stack and assigns them to localnames[0..argcount] in pop
// order: the first value popped (the last one pushed) goes to the first
// parameter name.
func TestCallArgBindingOrder(t *testing.T) {
	s := newFakeStore()
	sub := &code.CodeObject{
		Argcount:   2,
		LocalNames: []string{"a", "b"},
		Code: []code.Instr{
			{Op: code.OpLoadArg, Arg: 0},
			{Op: code.OpLoadArg, Arg: 1},
			{Op: code.OpSub},
			{Op: code.OpReturnVal},
		},
	}
	subHash := s.put(sub)

	main := &code.CodeObject{
		Litpool: []code.Value{code.I32(10), code.I32(3)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0}, // push 10
			{Op: code.OpLoadLit, Arg: 1}, // push 3 (top of stack)
			{Op: code.OpLoadFunc, Hash: subHash},
			{Op: code.OpCall},
			{Op: code.OpReturnVal},
		},
	}
	s.bind("main", s.put(main))

	i, _ := New(s)
	got, err := i.RunMain()
	if err != nil {
		t.Fatal(err)
	}
	// a (first param) is bound to the first pop, i.e. the top of stack (3);
	// b is bound to 10. a - b = 3 - 10 = -7.
	if got != -7 {
		t.Errorf("got %d, want -7", got)
	}
}

// TestCallSelfFib computes fib(6) = 8 using call_self recursion.
func TestCallSelfFib(t *testing.T) {
	s := newFakeStore()
	fib := &code.CodeObject{
		Argcount:   1,
		LocalNames: []string{"n"},
		Litpool:    []code.Value{code.I32(2), code.I32(1)},
		Labels:     []int{13},
		Code: []code.Instr{
			{Op: code.OpLoadArg, Arg: 0},   // 0: n
			{Op: code.OpLoadLit, Arg: 0},   // 1: 2
			{Op: code.OpJumpLt, Arg: 0},    // 2: if n < 2 goto base
			{Op: code.OpLoadArg, Arg: 0},   // 3: n
			{Op: code.OpLoadLit, Arg: 1},   // 4: 1
			{Op: code.OpSub},               // 5: n-1
			{Op: code.OpCallSelf},          // 6: fib(n-1)
			{Op: code.OpLoadArg, Arg: 0},   // 7: n
			{Op: code.OpLoadLit, Arg: 0},   // 8: 2
			{Op: code.OpSub},               // 9: n-2
			{Op: code.OpCallSelf},          // 10: fib(n-2)
			{Op: code.OpAdd},               // 11: fib(n-1)+fib(n-2)
			{Op: code.OpReturnVal},         // 12
			{Op: code.OpLoadArg, Arg: 0},   // 13 (base): n
			{Op: code.OpReturnVal},         // 14
		},
	}
	fibHash := s.put(fib)

	main := &code.CodeObject{
		Litpool: []code.Value{code.I32(6)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpLoadFunc, Hash: fibHash},
			{Op: code.OpCall},
			{Op: code.OpReturnVal},
		},
	}
	s.bind("main", s.put(main))

	i, _ := New(s)
	got, err := i.RunMain()
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("fib(6) = %d, want 8", got)
	}
}

// TestLoadDynCallsByName exercises dynamic dispatch through a store lookup.
func TestLoadDynCallsByName(t *testing.T) {
	s := newFakeStore()
	double := &code.CodeObject{
		Argcount:   1,
		LocalNames: []string{"n"},
		Litpool:    []code.Value{code.I32(2)},
		Code: []code.Instr{
			{Op: code.OpLoadArg, Arg: 0},
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpMul},
			{Op: code.OpReturnVal},
		},
	}
	s.bind("double", s.put(double))

	main := &code.CodeObject{
		Litpool: []code.Value{code.I32(21)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpLoadDyn, Name: "double"},
			{Op: code.OpCall},
			{Op: code.OpReturnVal},
		},
	}
	s.bind("main", s.put(main))

	i, _ := New(s)
	got, err := i.RunMain()
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestOperandStackOverflow(t *testing.T) {
	obj := &code.CodeObject{
		Litpool: []code.Value{code.I32(1)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpReturnVal},
		},
	}
	i, _ := New(newFakeStore(), OperandStackSize(1))
	if _, err := i.Run(obj); err == nil {
		t.Error("expected an operand stack overflow error")
	}
}

func TestOperandStackUnderflow(t *testing.T) {
	obj := &code.CodeObject{Code: []code.Instr{{Op: code.OpPop}}}
	i, _ := New(newFakeStore())
	if _, err := i.Run(obj); err == nil {
		t.Error("expected an operand stack underflow error")
	}
}

func TestDebugKeepsFinalFrame(t *testing.T) {
	obj := &code.CodeObject{
		Litpool: []code.Value{code.I32(5)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpReturnVal},
		},
	}
	i, _ := New(newFakeStore(), Debug(true))
	if _, err := i.Run(obj); err != nil {
		t.Fatal(err)
	}
	frames := i.Frames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames after a debug run, want 1", len(frames))
	}
	if len(frames[0].Stack) != 1 || !frames[0].Stack[0].Equal(code.I32(5)) {
		t.Errorf("final frame stack = %v, want [5]", frames[0].Stack)
	}
}
