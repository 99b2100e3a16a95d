// Package vm implements the execution engine: a stack machine with
// per-call frames, dynamic dispatch against a code store, and the
// instruction set defined in package code.
//
// A frame holds an operand stack, a name-keyed local environment seeded
// from the callee's arguments, and an instruction pointer into its code
// object's instruction stream. Call pushes a new frame and binds its
// locals by popping argcount values off the caller's operand stack;
// Return/ReturnVal pops the current frame and, for ReturnVal, pushes the
// returned value onto the new top frame's stack. Running past the end of
// a function's instruction stream is an implicit void return.
//
// The entry point, RunMain, resolves the store's "main" binding, builds
// its initial frame, and runs until the call stack is exhausted; main's
// returned value must be a 32-bit signed integer, which becomes the
// process exit code.
package vm
