// Package link implements the link/resolve pass: it converts symbolic
// load_dyn name references into content-addressed load_func hash
// references, by topologically ordering functions on their dependency
// graph and hashing leaves before the functions that call them.
package link

import "github.com/pkg/errors"

type mark uint8

const (
	unmarked mark = iota
	onStack
	done
)

// toposort produces a linear, leaves-first order over names: every
// dependency (deps[name]) appears before the function that depends on it,
// so walking the result forward and hashing as you go guarantees a
// function's dependencies are already hashed by the time the function
// itself is reached. It uses a DFS with three marks; encountering an
// onStack node means the graph has a cycle.
func toposort(names []string, deps map[string][]string) ([]string, error) {
	marks := make(map[string]mark, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case done:
			return nil
		case onStack:
			return errors.Errorf("link: dependency cycle detected at %q", name)
		}
		marks[name] = onStack
		for _, dep := range deps[name] {
			if _, known := deps[dep]; !known {
				// Dependency outside the input set: resolved dynamically
				// at runtime, not part of the graph to order.
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = done
		order = append(order, name)
		return nil
	}

	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}
