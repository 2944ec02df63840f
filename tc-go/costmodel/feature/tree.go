// Package feature holds the training samples of the cost model: loop-nest
// trees with their computation and loop feature rows and measured cost.
package feature

import (
	"encoding/binary"

	spooky "github.com/dgryski/go-spooky"
)

// Node is a loop of the nest. Children are indices into Tree.Nodes in the
// order in which the loops appear in the program.
type Node struct {
	Children    []int
	HasComps    bool
	CompIndices []int
	LoopIndex   int
}

// Tree stores the nodes of a loop nest in an arena. The root is Nodes[0].
type Tree struct {
	Nodes []Node
}

// Root ...
func (t *Tree) Root() *Node {
	return &t.Nodes[0]
}

// Len is the number of nodes.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Validate checks that the nodes form a single tree rooted at index 0: every
// other node is the child of exactly one node and no node is its own
// ancestor.
func (t *Tree) Validate() error {
	if len(t.Nodes) == 0 {
		return malformed("tree has no nodes")
	}
	parents := make([]int, len(t.Nodes))
	for i := range parents {
		parents[i] = -1
	}
	for i, n := range t.Nodes {
		for _, c := range n.Children {
			switch {
			case c <= 0 || c >= len(t.Nodes):
				return outOfRange("node %d has child %d, tree has %d nodes", i, c, len(t.Nodes))
			case parents[c] >= 0:
				return malformed("node %d is a child of both %d and %d", c, parents[c], i)
			}
			parents[c] = i
		}
	}
	if len(t.PostOrder()) != len(t.Nodes) {
		return malformed("tree has nodes unreachable from the root")
	}
	return nil
}

// PostOrder lists the node indices reachable from the root, children before
// their parents and siblings in order. The traversal is iterative so deep
// nests do not grow the stack.
func (t *Tree) PostOrder() []int {
	type frame struct {
		node, next int
	}
	order := make([]int, 0, len(t.Nodes))
	visited := make([]bool, len(t.Nodes))
	stack := []frame{{node: 0}}
	visited[0] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := t.Nodes[top.node].Children
		if top.next < len(children) {
			c := children[top.next]
			top.next++
			if c <= 0 || c >= len(t.Nodes) || visited[c] {
				continue
			}
			visited[c] = true
			stack = append(stack, frame{node: c})
			continue
		}
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}
	return order
}

// Depth is the number of nodes on the longest root to leaf path.
func (t *Tree) Depth() int {
	depth := make([]int, len(t.Nodes))
	var max int
	for _, i := range t.PostOrder() {
		d := 1
		for _, c := range t.Nodes[i].Children {
			if depth[c]+1 > d {
				d = depth[c] + 1
			}
		}
		depth[i] = d
		if d > max {
			max = d
		}
	}
	return max
}

// Signature hashes the structure of the tree together with the number of
// computation and loop rows. Samples with equal signatures can share a batch.
func (t *Tree) Signature(numComps, numLoops int) uint64 {
	buf := make([]byte, 0, 16*len(t.Nodes)+16)
	put := func(v int) {
		var b [binary.MaxVarintLen64]byte
		buf = append(buf, b[:binary.PutVarint(b[:], int64(v))]...)
	}
	put(numComps)
	put(numLoops)
	for _, n := range t.Nodes {
		put(n.LoopIndex)
		put(len(n.Children))
		for _, c := range n.Children {
			put(c)
		}
		if n.HasComps {
			put(len(n.CompIndices))
			for _, c := range n.CompIndices {
				put(c)
			}
		} else {
			put(-1)
		}
	}
	return spooky.Hash64(buf)
}
