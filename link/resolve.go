package link

import (
	"sort"

	"github.com/mattnappo/efa/code"
)

// Resolve converts a set of assembled functions, named and keyed by source
// name, into hash-linked code objects: every LoadDyn(name) instruction
// whose target is also present in objs is rewritten to LoadFunc(hash) of
// that target's linked form. LoadDyn instructions naming a function outside
// objs are left untouched; they fall through to a store lookup at
// execution time.
//
// Resolution proceeds leaves-first (4.E step 3): a function is only hashed
// once every dependency it shares with objs has already been hashed, so
// that a caller's resolved bytes - and therefore its hash - always reflect
// its callees' final hashes.
func Resolve(objs map[string]*code.CodeObject) (map[string]*code.CodeObject, error) {
	names := make([]string, 0, len(objs))
	deps := make(map[string][]string, len(objs))
	for name, obj := range objs {
		names = append(names, name)
		deps[name] = obj.DynDeps()
	}
	// Deterministic iteration order keeps Resolve's error messages and
	// (for acyclic, unambiguous graphs) output reproducible across runs.
	sort.Strings(names)

	order, err := toposort(names, deps)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]code.Hash, len(objs))
	out := make(map[string]*code.CodeObject, len(objs))
	for _, name := range order {
		obj := objs[name]
		rewritten := &code.CodeObject{
			Argcount:   obj.Argcount,
			LocalNames: obj.LocalNames,
			Litpool:    obj.Litpool,
			Labels:     obj.Labels,
			Code:       make([]code.Instr, len(obj.Code)),
		}
		for i, in := range obj.Code {
			if in.Op == code.OpLoadDyn {
				if h, ok := resolved[in.Name]; ok {
					in = code.Instr{Op: code.OpLoadFunc, Hash: h}
				}
			}
			rewritten.Code[i] = in
		}
		h := rewritten.Hash()
		resolved[name] = h
		out[name] = rewritten
	}
	return out, nil
}
