package agent

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidTree is returned by ValidateTree.
var ErrInvalidTree = errors.New("invalid agent tree")

// ValidateTree checks that the agents reachable from root form a tree:
// no cycles, no agent reachable twice, and unique names.
func ValidateTree(root Agent) error {
	if root == nil {
		return fmt.Errorf("%w: root is nil", ErrInvalidTree)
	}
	v := &treeValidator{
		names:   make(map[string]bool),
		visited: make(map[any]bool),
		onPath:  make(map[any]bool),
	}
	return v.walk(root)
}

type treeValidator struct {
	names   map[string]bool
	visited map[any]bool
	onPath  map[any]bool
}

func (v *treeValidator) walk(a Agent) error {
	if a == nil {
		return fmt.Errorf("%w: nil agent", ErrInvalidTree)
	}

	// Identity checks need a comparable agent value.
	if reflect.TypeOf(a).Comparable() {
		if v.onPath[a] {
			return fmt.Errorf("%w: cycle through %q", ErrInvalidTree, a.Name())
		}
		if v.visited[a] {
			return fmt.Errorf("%w: agent %q is shared by more than one parent", ErrInvalidTree, a.Name())
		}
		v.visited[a] = true
		v.onPath[a] = true
		defer delete(v.onPath, a)
	}

	if v.names[a.Name()] {
		return fmt.Errorf("%w: duplicate agent name %q", ErrInvalidTree, a.Name())
	}
	v.names[a.Name()] = true

	if p, ok := a.(Parent); ok {
		for _, child := range p.SubAgents() {
			if err := v.walk(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// Walk visits root and its descendants depth-first.
func Walk(root Agent, fn func(a Agent, depth int)) {
	var visit func(Agent, int)
	visit = func(a Agent, depth int) {
		fn(a, depth)
		if p, ok := a.(Parent); ok {
			for _, c := range p.SubAgents() {
				visit(c, depth+1)
			}
		}
	}
	if root != nil {
		visit(root, 0)
	}
}
