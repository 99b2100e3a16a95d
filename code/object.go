// Package code defines the instruction set, the Value type, and the
// CodeObject that the assembler, linker, store, and VM all share.
//
//	op          asm            arg        description
//	LoadArg     load_arg  N    index      push argument N
//	LoadLocal   load_loc  N    index      push local N
//	LoadLit     load_lit  N    index      push litpool[N]
//	StoreLocal  store_loc N    index      pop TOS into local N
//	Pop         pop                       discard TOS
//	Dup         dup                       duplicate TOS
//	LoadFunc    load_func 0xHASH  hash    push a Hash literal
//	LoadDyn     load_dyn  $name   name    resolve name, push its Hash
//	Call        call                      pop Hash, invoke callee
//	CallSelf    call_self                 invoke the current code object
//	Return      ret                       discard frame, no value
//	ReturnVal   ret_val                   pop TOS, return it to caller
//	Jump        jmp       Lname   label   unconditional branch
//	JumpT       jmp_t     Lname   label   pop Bool, branch if true
//	JumpF       jmp_f     Lname   label   pop Bool, branch if false
//	JumpEq      jmp_eq    Lname   label   pop rhs,lhs; branch if lhs == rhs
//	JumpNe      jmp_ne    Lname   label   branch if lhs != rhs
//	JumpGt      jmp_gt    Lname   label   branch if lhs > rhs
//	JumpGe      jmp_ge    Lname   label   branch if lhs >= rhs
//	JumpLt      jmp_lt    Lname   label   branch if lhs < rhs
//	JumpLe      jmp_le    Lname   label   branch if lhs <= rhs
//	Add Sub Mul Div Mod Shl Shr And Or Eq  pop rhs, pop lhs, push result
//	Not Neg                                 pop, push result
//	Dbg         dbg                       print TOS without consuming it
//	Nop         nop                       no-op
package code

// CodeObject is the immutable unit of code: a function's formal parameter
// count, its local/parameter names, its literal pool, its label table, and
// its instruction stream. A code object's identity is exactly its
// serialized form: mutating any field produces a new identity (and a new
// Hash) when re-inserted into a store.
type CodeObject struct {
	Argcount   int
	LocalNames []string
	Litpool    []Value
	Labels     []int
	Code       []Instr
}

// Hash computes the content hash of obj: the truncated SHA-512 digest of
// its deterministic serialized form. Equal CodeObjects, byte for byte,
// always hash identically; any difference in structure or data changes the
// hash.
func (obj *CodeObject) Hash() Hash {
	return hashBytes(Encode(obj))
}

// UsesCallSelf reports whether obj contains a CallSelf instruction.
func (obj *CodeObject) UsesCallSelf() bool {
	for _, in := range obj.Code {
		if in.Op == OpCallSelf {
			return true
		}
	}
	return false
}

// DynDeps returns, in order of first occurrence, the distinct names
// referenced by LoadDyn instructions in obj. These are obj's direct
// dependencies for the purposes of the link/resolve pass (4.E).
func (obj *CodeObject) DynDeps() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, in := range obj.Code {
		if in.Op == OpLoadDyn && !seen[in.Name] {
			seen[in.Name] = true
			deps = append(deps, in.Name)
		}
	}
	return deps
}
