package store

import (
	apperrors "sbvc/internal/errors"
)

// Node is one version in the nested tree view handed to presentation code.
type Node struct {
	Version  Version `json:"version"`
	Depth    int     `json:"depth"`
	Children []*Node `json:"children,omitempty"`
}

// Walk visits the tree depth-first from the root, children in creation order.
// Returning an error from fn stops the walk.
func (s *State) Walk(fn func(v Version, depth int) error) error {
	children := make(map[uint32][]Version, len(s.Versions))
	for _, v := range s.Versions {
		if !v.IsRoot() {
			children[v.Base] = append(children[v.Base], v)
		}
	}

	visited := make(map[uint32]bool, len(s.Versions))
	var visit func(v Version, depth int) error
	visit = func(v Version, depth int) error {
		if visited[v.ID] {
			return apperrors.MalformedStore("version %d reached twice", v.ID)
		}
		visited[v.ID] = true
		if err := fn(v, depth); err != nil {
			return err
		}
		for _, c := range children[v.ID] {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if len(s.Versions) == 0 {
		return nil
	}
	return visit(s.Root(), 0)
}

// Tree builds the nested view of the history.
func (s *State) Tree() (*Node, error) {
	nodes := make(map[uint32]*Node, len(s.Versions))
	var root *Node
	err := s.Walk(func(v Version, depth int) error {
		n := &Node{Version: v.Clone(), Depth: depth}
		nodes[v.ID] = n
		if v.IsRoot() {
			root = n
			return nil
		}
		parent := nodes[v.Base]
		parent.Children = append(parent.Children, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}
