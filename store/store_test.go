package store

import (
	"path/filepath"
	"testing"

	"github.com/mattnappo/efa/code"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertIdempotent(t *testing.T) {
	s := openTemp(t)
	obj := &code.CodeObject{Code: []code.Instr{{Op: code.OpReturn}}}
	h1, err := s.Insert(obj)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Insert(obj)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("inserting the same object twice produced different hashes: %s vs %s", h1, h2)
	}
}

func TestBindAndGetMain(t *testing.T) {
	s := openTemp(t)
	obj := &code.CodeObject{
		Litpool: []code.Value{code.I32(42)},
		Code:    []code.Instr{{Op: code.OpLoadLit, Arg: 0}, {Op: code.OpReturnVal}},
	}
	h, err := s.InsertNamed(MainName, obj)
	if err != nil {
		t.Fatal(err)
	}
	gotHash, gotObj, err := s.GetMain()
	if err != nil {
		t.Fatal(err)
	}
	if gotHash != h {
		t.Errorf("GetMain hash = %s, want %s", gotHash, h)
	}
	if len(gotObj.Code) != len(obj.Code) {
		t.Error("GetMain returned a different code object")
	}
}

func TestBindRejectsInvalidName(t *testing.T) {
	s := openTemp(t)
	h, _ := s.Insert(&code.CodeObject{})
	if err := s.Bind("not a name", h); err == nil {
		t.Error("expected an error binding a name containing whitespace")
	}
	if err := s.Bind("0leadingdigit", h); err == nil {
		t.Error("expected an error binding a name starting with a digit")
	}
}

func TestBindRejectsRebindToDifferentHash(t *testing.T) {
	s := openTemp(t)
	h1, _ := s.Insert(&code.CodeObject{Code: []code.Instr{{Op: code.OpNop}}})
	h2, _ := s.Insert(&code.CodeObject{Code: []code.Instr{{Op: code.OpReturn}}})
	if err := s.Bind("f", h1); err != nil {
		t.Fatal(err)
	}
	if err := s.Bind("f", h2); err == nil {
		t.Error("expected an error rebinding an existing name to a different hash")
	}
}

func TestNameOf(t *testing.T) {
	s := openTemp(t)
	obj := &code.CodeObject{Code: []code.Instr{{Op: code.OpNop}}}
	h, err := s.InsertNamed("foo", obj)
	if err != nil {
		t.Fatal(err)
	}
	name, ok, err := s.NameOf(h)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || name != "foo" {
		t.Errorf("NameOf(%s) = %q, %v, want \"foo\", true", h, name, ok)
	}
}

func TestGetByHashMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.GetByHash(code.Hash{0xff}); err == nil {
		t.Error("expected an error fetching an unknown hash")
	}
}
