package vm_test

import (
	"fmt"
	"os"

	"github.com/mattnappo/efa/code"
	"github.com/mattnappo/efa/store"
	"github.com/mattnappo/efa/vm"
)

// Shows inserting a hand-built function into a store and running it through the
// engine's public API, with Dbg output routed to a chosen writer.
func ExampleInstance_RunMain() {
	s, err := store.Open("")
	if err != nil {
		panic(err)
	}
	defer s.Close()

	main := &code.CodeObject{
		Litpool: []code.Value{code.I32(6), code.I32(7)},
		Code: []code.Instr{
			{Op: code.OpLoadLit, Arg: 0},
			{Op: code.OpLoadLit, Arg: 1},
			{Op: code.OpMul},
			{Op: code.OpDup},
			{Op: code.OpDbg},
			{Op: code.OpReturnVal},
		},
	}
	if _, err := s.InsertNamed(store.MainName, main); err != nil {
		panic(err)
	}

	i, err := vm.New(s, vm.Output(os.Stdout))
	if err != nil {
		panic(err)
	}
	exitCode, err := i.RunMain()
	if err != nil {
		panic(err)
	}
	fmt.Println("exit code:", exitCode)

	// Output:
	// 42
	// exit code: 42
}
