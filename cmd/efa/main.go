// Command efa assembles, stores, and runs programs for the stack
// machine implemented by package vm.
//
//	efa run <file.asm> [db]   assemble, link, insert into db (or a
//	                          temporary store if db is omitted), run main
//	efa dis <db>              print every function in db as assembly text
//	efa rt <file.asm>         round-trip file.asm through a temporary
//	                          store, disassemble, reassemble into a
//	                          second temporary store, and compare the
//	                          two runs' exit codes
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/mattnappo/efa/asm"
	"github.com/mattnappo/efa/code"
	"github.com/mattnappo/efa/link"
	"github.com/mattnappo/efa/store"
	"github.com/mattnappo/efa/vm"
	"github.com/pkg/errors"
)

var debug bool

func atExit(err error) {
	if err == nil {
		return
	}
	if !debug {
		fmt.Fprintf(os.Stderr, "efa: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "efa: %+v\n", err)
	os.Exit(1)
}

func main() {
	flag.BoolVar(&debug, "debug", false, "print full error causes instead of short messages")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: efa run <file.asm> [db] | dis <db> | rt <file.asm>")
		os.Exit(2)
	}

	var exitCode int
	var err error
	switch args[0] {
	case "run":
		exitCode, err = cmdRun(args[1:])
	case "dis":
		err = cmdDis(args[1:])
	case "rt":
		err = cmdRoundTrip(args[1:])
	default:
		err = errors.Errorf("unknown subcommand %q", args[0])
	}
	atExit(err)
	os.Exit(exitCode)
}

// assembleAndLink reads path, assembles it, and resolves its LoadDyn
// instructions against each other, returning a map ready for insertion.
func assembleAndLink(path string) (map[string]*code.CodeObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	objs, err := asm.Assemble(path, f)
	if err != nil {
		return nil, errors.Wrapf(err, "assemble %s", path)
	}
	resolved, err := link.Resolve(objs)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	return resolved, nil
}

// insertAll inserts every function in objs into s, binding each by its
// source name. Order does not matter: Insert is content-addressed and
// idempotent, so callers of any unresolved LoadDyn already landed from an
// earlier Resolve pass.
func insertAll(s *store.Store, objs map[string]*code.CodeObject) error {
	for name, obj := range objs {
		if _, err := s.InsertNamed(name, obj); err != nil {
			return errors.Wrapf(err, "insert %s", name)
		}
	}
	return nil
}

func cmdRun(args []string) (int, error) {
	if len(args) < 1 {
		return 1, errors.New("run: missing <file.asm>")
	}
	dbPath := ""
	if len(args) > 1 {
		dbPath = args[1]
	}

	objs, err := assembleAndLink(args[0])
	if err != nil {
		return 1, err
	}

	s, err := store.Open(dbPath)
	if err != nil {
		return 1, errors.Wrapf(err, "open store %q", dbPath)
	}
	defer s.Close()

	if err := insertAll(s, objs); err != nil {
		return 1, err
	}

	i, err := vm.New(s)
	if err != nil {
		return 1, errors.Wrap(err, "start engine")
	}
	exitCode, err := i.RunMain()
	if err != nil {
		return 1, errors.Wrap(err, "run main")
	}
	return int(exitCode), nil
}

func cmdDis(args []string) error {
	if len(args) < 1 {
		return errors.New("dis: missing <db>")
	}
	s, err := store.Open(args[0])
	if err != nil {
		return errors.Wrapf(err, "open store %q", args[0])
	}
	defer s.Close()

	names, err := s.Names()
	if err != nil {
		return errors.Wrap(err, "list names")
	}
	objs := make(map[string]*code.CodeObject, len(names))
	for _, name := range names {
		_, obj, err := s.GetByName(name)
		if err != nil {
			return errors.Wrapf(err, "load %s", name)
		}
		objs[name] = obj
	}
	return errors.Wrap(asm.Disassemble(os.Stdout, objs), "disassemble")
}

// cmdRoundTrip proves that a program's observable behavior survives a
// disassemble/reassemble cycle: assemble+run once, then disassemble the
// first store's contents, reassemble that text into a second store, run it
// too, and compare exit codes.
func cmdRoundTrip(args []string) error {
	if len(args) < 1 {
		return errors.New("rt: missing <file.asm>")
	}

	objs, err := assembleAndLink(args[0])
	if err != nil {
		return err
	}

	s1, err := store.Open("")
	if err != nil {
		return errors.Wrap(err, "open first store")
	}
	defer s1.Close()
	if err := insertAll(s1, objs); err != nil {
		return err
	}
	i1, err := vm.New(s1)
	if err != nil {
		return errors.Wrap(err, "start first engine")
	}
	exit1, err := i1.RunMain()
	if err != nil {
		return errors.Wrap(err, "run first instance")
	}

	names1, err := s1.Names()
	if err != nil {
		return errors.Wrap(err, "list names in first store")
	}
	objs1 := make(map[string]*code.CodeObject, len(names1))
	for _, name := range names1 {
		_, obj, err := s1.GetByName(name)
		if err != nil {
			return errors.Wrapf(err, "load %s from first store", name)
		}
		objs1[name] = obj
	}

	var buf bytes.Buffer
	if err := asm.Disassemble(&buf, objs1); err != nil {
		return errors.Wrap(err, "disassemble first store")
	}

	objs2, err := asm.Assemble(args[0]+" (reassembled)", &buf)
	if err != nil {
		return errors.Wrap(err, "reassemble dumped text")
	}
	resolved2, err := link.Resolve(objs2)
	if err != nil {
		return errors.Wrap(err, "resolve reassembled text")
	}

	s2, err := store.Open("")
	if err != nil {
		return errors.Wrap(err, "open second store")
	}
	defer s2.Close()
	if err := insertAll(s2, resolved2); err != nil {
		return err
	}
	i2, err := vm.New(s2)
	if err != nil {
		return errors.Wrap(err, "start second engine")
	}
	exit2, err := i2.RunMain()
	if err != nil {
		return errors.Wrap(err, "run second instance")
	}

	if exit1 != exit2 {
		return errors.Errorf("round trip changed behavior: first run exited %d, second exited %d", exit1, exit2)
	}
	fmt.Printf("round trip ok, exit code %d\n", exit1)
	return nil
}
