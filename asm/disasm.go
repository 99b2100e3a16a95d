package asm

import (
	"fmt"
	"io"
	"sort"

	"github.com/mattnappo/efa/code"
	"github.com/mattnappo/efa/internal/ngi"
	"github.com/pkg/errors"
)

// Disassemble writes the textual form of every object in objs to w, one
// function per block, functions sorted by name for reproducible output.
// For objects produced by Assemble, reassembling the emitted text (via
// Assemble) reproduces each object field for field, and therefore its Hash.
// Local names are not emitted, so reassembly always uses the default
// x0, x1, ... names.
func Disassemble(w io.Writer, objs map[string]*code.CodeObject) error {
	names := make([]string, 0, len(objs))
	for name := range objs {
		names = append(names, name)
	}
	sort.Strings(names)

	ew := ngi.NewErrWriter(w)
	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(ew)
		}
		writeFunc(ew, name, objs[name])
	}
	return errors.Wrap(ew.Err, "asm: disassemble")
}

func writeFunc(w io.Writer, name string, obj *code.CodeObject) {
	fmt.Fprintf(w, "# %s\n", obj.Hash())
	fmt.Fprintf(w, "$%s %d:\n", name, obj.Argcount)
	for _, v := range obj.Litpool {
		fmt.Fprintf(w, ".lit %s\n", v)
	}

	labelsAt := make(map[int][]int, len(obj.Labels))
	for id, off := range obj.Labels {
		labelsAt[off] = append(labelsAt[off], id)
	}
	for ip, in := range obj.Code {
		for _, id := range labelsAt[ip] {
			fmt.Fprintf(w, "L%d:\n", id)
		}
		fmt.Fprintln(w, instrText(in))
	}
	for _, id := range labelsAt[len(obj.Code)] {
		fmt.Fprintf(w, "L%d:\n", id)
	}
}

func instrText(in code.Instr) string {
	switch {
	case in.Op == code.OpLoadFunc:
		return fmt.Sprintf("%s %s", in.Op, in.Hash)
	case in.Op == code.OpLoadDyn:
		return fmt.Sprintf("%s $%s", in.Op, in.Name)
	case in.Op.IsJump():
		return fmt.Sprintf("%s L%d", in.Op, in.Arg)
	case in.Op.HasIndexArg():
		return fmt.Sprintf("%s %d", in.Op, in.Arg)
	default:
		return in.Op.String()
	}
}
