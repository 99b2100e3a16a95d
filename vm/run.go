package vm

import (
	"fmt"

	"github.com/mattnappo/efa/code"
	"github.com/pkg/errors"
)

// RunMain resolves the store's "main" binding, builds its initial frame,
// and runs it to completion. The return value of main must be a 32-bit
// signed integer; that value becomes the returned exit code.
func (i *Instance) RunMain() (exitCode int32, err error) {
	_, obj, err := i.store.GetMain()
	if err != nil {
		return 0, err
	}
	return i.Run(obj)
}

// Run executes obj as a fresh top-level frame (with no arguments and an
// empty local environment) to completion, the same way RunMain does for
// the store's "main" binding. It is exported chiefly for testing isolated
// functions without binding them into a store first.
func (i *Instance) Run(obj *code.CodeObject) (exitCode int32, err error) {
	i.frames = []*Frame{newFrame(obj)}
	i.insCount = 0
	return i.run()
}

func (i *Instance) push(f *Frame, v code.Value) {
	if len(f.Stack) >= i.operandStackSize {
		panic(errors.New("operand stack overflow"))
	}
	f.Stack = append(f.Stack, v)
}

func (i *Instance) pop(f *Frame) code.Value {
	n := len(f.Stack)
	if n == 0 {
		panic(errors.New("operand stack underflow"))
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

func (i *Instance) pushFrame(f *Frame) {
	if len(i.frames) >= i.callStackSize {
		panic(errors.New("call stack overflow"))
	}
	i.frames = append(i.frames, f)
}

// run is the step loop (4.F). Panics raised by the helpers above, and by
// Value arithmetic, are recovered here and converted into a wrapped error;
// the engine's public surface never panics across its own API boundary.
func (i *Instance) run() (exitCode int32, err error) {
	defer func() {
		if e := recover(); e != nil {
			switch e := e.(type) {
			case error:
				if n := len(i.frames); n > 0 {
					err = errors.Wrapf(e, "vm: @ip=%d", i.frames[n-1].IP)
				} else {
					err = errors.Wrap(e, "vm")
				}
			default:
				panic(e)
			}
		}
	}()

	for len(i.frames) > 0 {
		f := i.frames[len(i.frames)-1]

		if f.IP >= len(f.Obj.Code) {
			// Running off the end of a function body is an implicit void
			// return.
			if i.returnFromFrame(nil) {
				return 0, nil
			}
			continue
		}

		in := f.Obj.Code[f.IP]
		switch in.Op {
		case code.OpLoadArg:
			if in.Arg < 0 || in.Arg >= f.Obj.Argcount {
				panic(errors.Errorf("load_arg %d out of range (argcount=%d)", in.Arg, f.Obj.Argcount))
			}
			i.push(f, f.Locals[f.Obj.LocalNames[in.Arg]])
			f.IP++

		case code.OpLoadLocal:
			k := f.Obj.Argcount + in.Arg
			if in.Arg < 0 || k >= len(f.Obj.LocalNames) {
				panic(errors.Errorf("load_loc %d out of range", in.Arg))
			}
			i.push(f, f.Locals[f.Obj.LocalNames[k]])
			f.IP++

		case code.OpLoadLit:
			if in.Arg < 0 || in.Arg >= len(f.Obj.Litpool) {
				panic(errors.Errorf("load_lit %d out of range (pool size %d)", in.Arg, len(f.Obj.Litpool)))
			}
			i.push(f, f.Obj.Litpool[in.Arg])
			f.IP++

		case code.OpStoreLocal:
			k := f.Obj.Argcount + in.Arg
			if in.Arg < 0 || k >= len(f.Obj.LocalNames) {
				panic(errors.Errorf("store_loc %d out of range", in.Arg))
			}
			f.Locals[f.Obj.LocalNames[k]] = i.pop(f)
			f.IP++

		case code.OpPop:
			i.pop(f)
			f.IP++

		case code.OpDup:
			top := i.pop(f)
			i.push(f, top)
			i.push(f, top)
			f.IP++

		case code.OpLoadFunc:
			i.push(f, code.HashValue(in.Hash))
			f.IP++

		case code.OpLoadDyn:
			h, _, err := i.store.GetByName(in.Name)
			if err != nil {
				panic(errors.Wrapf(err, "load_dyn %q", in.Name))
			}
			i.push(f, code.HashValue(h))
			f.IP++

		case code.OpCall:
			h := i.pop(f)
			if h.Kind() != code.KindHash {
				panic(errors.Errorf("call: expected a hash on the operand stack, got %s", h.Kind()))
			}
			callee, err := i.store.GetByHash(h.AsHash())
			if err != nil {
				panic(errors.Wrapf(err, "call %s", h.AsHash()))
			}
			f.IP++
			i.pushFrame(i.bindCall(f, callee))

		case code.OpCallSelf:
			f.IP++
			i.pushFrame(i.bindCall(f, f.Obj))

		case code.OpReturn:
			if i.returnFromFrame(nil) {
				return 0, nil
			}

		case code.OpReturnVal:
			v := i.pop(f)
			if i.returnFromFrame(&v) {
				if v.Kind() != code.KindI32 {
					panic(errors.Errorf("main function must return an i32, got %s", v.Kind()))
				}
				return v.AsI32(), nil
			}

		case code.OpJump:
			f.IP = i.label(f, in.Arg)

		case code.OpJumpT:
			if i.popBool(f) {
				f.IP = i.label(f, in.Arg)
			} else {
				f.IP++
			}

		case code.OpJumpF:
			if !i.popBool(f) {
				f.IP = i.label(f, in.Arg)
			} else {
				f.IP++
			}

		case code.OpJumpEq, code.OpJumpNe, code.OpJumpGt, code.OpJumpGe, code.OpJumpLt, code.OpJumpLe:
			rhs, lhs := i.pop(f), i.pop(f)
			cmp, err := lhs.Compare(rhs)
			if err != nil {
				panic(err)
			}
			if jumpTest(in.Op, cmp) {
				f.IP = i.label(f, in.Arg)
			} else {
				f.IP++
			}

		case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod, code.OpShl, code.OpShr:
			rhs, lhs := i.pop(f), i.pop(f)
			result, err := applyBinOp(in.Op, lhs, rhs)
			if err != nil {
				panic(err)
			}
			i.push(f, result)
			f.IP++

		case code.OpAnd:
			rhs, lhs := i.pop(f), i.pop(f)
			i.push(f, lhs.And(rhs))
			f.IP++

		case code.OpOr:
			rhs, lhs := i.pop(f), i.pop(f)
			i.push(f, lhs.Or(rhs))
			f.IP++

		case code.OpEq:
			rhs, lhs := i.pop(f), i.pop(f)
			i.push(f, code.Bool(lhs.Equal(rhs)))
			f.IP++

		case code.OpNot:
			v, err := i.pop(f).Not()
			if err != nil {
				panic(err)
			}
			i.push(f, v)
			f.IP++

		case code.OpNeg:
			v, err := i.pop(f).Neg()
			if err != nil {
				panic(err)
			}
			i.push(f, v)
			f.IP++

		case code.OpDbg:
			if len(f.Stack) == 0 {
				panic(errors.New("dbg: operand stack is empty"))
			}
			fmt.Fprintln(i.output, f.Stack[len(f.Stack)-1])
			f.IP++

		case code.OpNop:
			f.IP++

		default:
			panic(errors.Errorf("unknown opcode %d", in.Op))
		}

		i.insCount++
	}
	return 0, errors.New("vm: call stack exhausted without a return from main")
}

func (i *Instance) popBool(f *Frame) bool {
	v := i.pop(f)
	if v.Kind() != code.KindBool {
		panic(errors.Errorf("expected a bool on the operand stack, got %s", v.Kind()))
	}
	return v.AsBool()
}

func (i *Instance) label(f *Frame, id int) int {
	if id < 0 || id >= len(f.Obj.Labels) {
		panic(errors.Errorf("label %d out of range (have %d)", id, len(f.Obj.Labels)))
	}
	target := f.Obj.Labels[id]
	if target < 0 || target > len(f.Obj.Code) {
		panic(errors.Errorf("label %d targets out-of-range offset %d", id, target))
	}
	return target
}

func jumpTest(op code.Op, cmp int) bool {
	switch op {
	case code.OpJumpEq:
		return cmp == 0
	case code.OpJumpNe:
		return cmp != 0
	case code.OpJumpGt:
		return cmp > 0
	case code.OpJumpGe:
		return cmp >= 0
	case code.OpJumpLt:
		return cmp < 0
	case code.OpJumpLe:
		return cmp <= 0
	}
	panic(errors.Errorf("not a comparison jump: %s", op))
}

func applyBinOp(op code.Op, lhs, rhs code.Value) (code.Value, error) {
	switch op {
	case code.OpAdd:
		return lhs.Add(rhs)
	case code.OpSub:
		return lhs.Sub(rhs)
	case code.OpMul:
		return lhs.Mul(rhs)
	case code.OpDiv:
		return lhs.Div(rhs)
	case code.OpMod:
		return lhs.Mod(rhs)
	case code.OpShl:
		return lhs.Shl(rhs)
	case code.OpShr:
		return lhs.Shr(rhs)
	}
	return code.Value{}, errors.Errorf("not a binary operator: %s", op)
}

// bindCall constructs the callee's frame, popping callee.Argcount values
// off the caller frame's operand stack in localnames[0..argcount] order:
// the first pop is assigned to the first parameter name, and so on.
func (i *Instance) bindCall(caller *Frame, callee *code.CodeObject) *Frame {
	nf := newFrame(callee)
	for k := 0; k < callee.Argcount; k++ {
		nf.Locals[callee.LocalNames[k]] = i.pop(caller)
	}
	return nf
}

// returnFromFrame pops the current (top) frame. If a non-nil value is
// supplied (ReturnVal), it is pushed onto the new top frame's operand
// stack, unless the popped frame was the outermost one, in which case that
// value is main's return value: returnFromFrame reports done=true and
// leaves exit-code validation to the caller. A nil value (Return, or an
// implicit void return) never produces an exit code. With Debug enabled,
// the outermost frame is left on the call stack instead of being popped,
// so Frames() can inspect it after RunMain/Run returns.
func (i *Instance) returnFromFrame(val *code.Value) (done bool) {
	n := len(i.frames)
	if n == 1 {
		if val != nil {
			i.frames[0].Stack = append(i.frames[0].Stack, *val)
		}
		if !i.debug {
			i.frames = i.frames[:0]
		}
		return true
	}
	i.frames = i.frames[:n-1]
	if val != nil {
		caller := i.frames[len(i.frames)-1]
		i.push(caller, *val)
	}
	return false
}
