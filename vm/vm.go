package vm

import (
	"io"
	"os"

	"github.com/mattnappo/efa/code"
	"github.com/mattnappo/efa/store"
)

const (
	defaultOperandStackSize = 256
	defaultCallStackSize    = 256
)

// codeStore is the subset of *store.Store the engine depends on; Call and
// LoadDyn dispatch through it, and RunMain resolves "main" through it.
type codeStore interface {
	GetByHash(h code.Hash) (*code.CodeObject, error)
	GetByName(name string) (code.Hash, *code.CodeObject, error)
	GetMain() (code.Hash, *code.CodeObject, error)
}

var _ codeStore = (*store.Store)(nil)

// Option configures an Instance at construction time.
type Option func(*Instance) error

// OperandStackSize sets the per-frame operand stack capacity.
func OperandStackSize(n int) Option {
	return func(i *Instance) error { i.operandStackSize = n; return nil }
}

// CallStackSize sets the call stack capacity.
func CallStackSize(n int) Option {
	return func(i *Instance) error { i.callStackSize = n; return nil }
}

// Debug leaves the final frame on the call stack after RunMain returns, so
// callers can inspect it. Dbg output does not depend on it: Dbg always
// prints to the Output writer.
func Debug(enabled bool) Option {
	return func(i *Instance) error { i.debug = enabled; return nil }
}

// Output sets the writer Dbg prints to. Defaults to os.Stdout.
func Output(w io.Writer) Option {
	return func(i *Instance) error { i.output = w; return nil }
}

// Instance is a single execution engine: a call stack of frames plus a
// handle to a code store. Multiple independent Instances may coexist, each
// with its own store; there is no process-wide mutable state.
type Instance struct {
	store            codeStore
	frames           []*Frame
	operandStackSize int
	callStackSize    int
	debug            bool
	output           io.Writer
	insCount         int64
}

// New creates an Instance bound to the given store.
func New(s codeStore, opts ...Option) (*Instance, error) {
	i := &Instance{
		store:            s,
		operandStackSize: defaultOperandStackSize,
		callStackSize:    defaultCallStackSize,
		output:           os.Stdout,
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// InstructionCount returns the number of instructions executed so far.
func (i *Instance) InstructionCount() int64 { return i.insCount }

// Frame is a transient per-invocation execution record: a reference to its
// code object, an operand stack, a name-keyed local environment seeded from
// its arguments, and an instruction pointer.
type Frame struct {
	Obj    *code.CodeObject
	Stack  []code.Value
	Locals map[string]code.Value
	IP     int
}

func newFrame(obj *code.CodeObject) *Frame {
	return &Frame{
		Obj:    obj,
		Locals: make(map[string]code.Value, len(obj.LocalNames)),
	}
}

// Frames returns the current call stack, outermost frame first. Only
// meaningful right after RunMain returns with Debug(true) set, or while
// inspecting a failed run.
func (i *Instance) Frames() []*Frame { return i.frames }
