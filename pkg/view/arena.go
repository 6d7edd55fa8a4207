// Package view holds the dashboard's display state: the flattened plan tree,
// per-node panel toggles and the plan selection state machine.
package view

import (
	"strconv"

	"github.com/TFMV/cachewatch/pkg/models"
)

// RootPath is the path of the root node of every plan.
const RootPath = "0"

// Node is one entry of a flattened plan tree.
type Node struct {
	// Path identifies the node: "0" for the root, "0.1" for its second child.
	Path     string
	Depth    int
	Index    int
	Parent   int
	Children []int
	Plan     *models.ExecutionPlanNode
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsLastChild reports whether n is the last child of its parent.
func (t *Tree) IsLastChild(n *Node) bool {
	if n.Parent < 0 {
		return true
	}
	siblings := t.Nodes[n.Parent].Children
	return siblings[len(siblings)-1] == n.Index
}

// Tree is a plan flattened into an arena in depth-first pre-order.
type Tree struct {
	Nodes []Node
	index map[string]int
}

// Flatten builds the arena for root. The walk uses an explicit stack so
// depth is bounded only by memory.
func Flatten(root *models.ExecutionPlanNode) *Tree {
	t := &Tree{index: make(map[string]int)}
	if root == nil {
		return t
	}

	type frame struct {
		node   *models.ExecutionPlanNode
		path   string
		depth  int
		parent int
	}

	stack := []frame{{node: root, path: RootPath, parent: -1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx := len(t.Nodes)
		t.Nodes = append(t.Nodes, Node{
			Path:   f.path,
			Depth:  f.depth,
			Index:  idx,
			Parent: f.parent,
			Plan:   f.node,
		})
		t.index[f.path] = idx
		if f.parent >= 0 {
			t.Nodes[f.parent].Children = append(t.Nodes[f.parent].Children, idx)
		}

		// Push in reverse so the first child is visited first.
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:   &f.node.Children[i],
				path:   f.path + "." + strconv.Itoa(i),
				depth:  f.depth + 1,
				parent: idx,
			})
		}
	}

	return t
}

// Root returns the root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	if len(t.Nodes) == 0 {
		return nil
	}
	return &t.Nodes[0]
}

// Lookup returns the node at path.
func (t *Tree) Lookup(path string) (*Node, bool) {
	idx, ok := t.index[path]
	if !ok {
		return nil, false
	}
	return &t.Nodes[idx], true
}

// ChildNodes returns the children of n in execution order.
func (t *Tree) ChildNodes(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, idx := range n.Children {
		out = append(out, &t.Nodes[idx])
	}
	return out
}

// MaxDepth returns the depth of the deepest node.
func (t *Tree) MaxDepth() int {
	deepest := 0
	for i := range t.Nodes {
		if t.Nodes[i].Depth > deepest {
			deepest = t.Nodes[i].Depth
		}
	}
	return deepest
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.Nodes)
}
