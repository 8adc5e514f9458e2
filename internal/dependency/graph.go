package dependency

import (
	"fmt"
	"sort"
)

// NodeID is the unique identifier for a node inside a graph. Instances are
// keyed by their store id.
type NodeID string

// Node is an instance placed in a parent/child tree.
type Node struct {
	ID           NodeID
	FriendlyName string

	// Parent is empty for roots.
	Parent   NodeID
	Sequence int

	// Priority is the priority of the upgrade pending on the node, zero
	// when nothing is pending.
	Priority int
}

// Graph is an arena of nodes addressed by id. Parent links are plain ids, so
// a misconfigured tree is detected by Validate instead of looping forever.
// It is not thread-safe; callers build one per operation.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	// Copy to avoid external mutations
	copied := n
	g.nodes[n.ID] = &copied
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Children returns the direct children of id by ascending sequence.
func (g *Graph) Children(id NodeID) []NodeID {
	var kids []*Node
	for _, n := range g.nodes {
		if n.Parent == id && n.ID != id {
			kids = append(kids, n)
		}
	}
	sort.Slice(kids, func(i, j int) bool {
		if kids[i].Sequence != kids[j].Sequence {
			return kids[i].Sequence < kids[j].Sequence
		}
		return kids[i].ID < kids[j].ID
	})
	res := make([]NodeID, len(kids))
	for i, k := range kids {
		res[i] = k.ID
	}
	return res
}

// Siblings returns the other children of id's parent.
func (g *Graph) Siblings(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok || n.Parent == "" {
		return nil
	}
	var res []NodeID
	for _, c := range g.Children(n.Parent) {
		if c != id {
			res = append(res, c)
		}
	}
	return res
}

// Descendants returns every node below id, depth first.
func (g *Graph) Descendants(id NodeID) []NodeID {
	var res []NodeID
	seen := map[NodeID]bool{id: true}
	var walk func(NodeID)
	walk = func(cur NodeID) {
		for _, c := range g.Children(cur) {
			if seen[c] {
				continue
			}
			seen[c] = true
			res = append(res, c)
			walk(c)
		}
	}
	walk(id)
	return res
}

// Validate checks that every parent exists and that following parents from
// any node ends at a root.
func (g *Graph) Validate() error {
	for id, n := range g.nodes {
		if n.Parent != "" {
			if _, ok := g.nodes[n.Parent]; !ok {
				return fmt.Errorf("node %s references unknown parent %s", id, n.Parent)
			}
		}
		seen := map[NodeID]bool{id: true}
		for cur := n.Parent; cur != ""; cur = g.nodes[cur].Parent {
			if seen[cur] {
				return fmt.Errorf("node %s is part of a parent cycle", id)
			}
			seen[cur] = true
			if g.nodes[cur] == nil {
				break
			}
		}
	}
	return nil
}

// MaxPriorityWithin returns the highest pending priority of id and its
// descendants.
func (g *Graph) MaxPriorityWithin(id NodeID) int {
	max := 0
	if n := g.nodes[id]; n != nil {
		max = n.Priority
	}
	for _, d := range g.Descendants(id) {
		if n := g.nodes[d]; n != nil && n.Priority > max {
			max = n.Priority
		}
	}
	return max
}

// MaxPriorityElsewhere returns the highest pending priority in the tree
// around id outside its own subtree: the siblings at every level of its
// parent chain, with their subtrees.
func (g *Graph) MaxPriorityElsewhere(id NodeID) int {
	max := 0
	cur := id
	visited := map[NodeID]bool{id: true}
	for {
		n := g.nodes[cur]
		if n == nil || n.Parent == "" || visited[n.Parent] {
			break
		}
		for _, sib := range g.Siblings(cur) {
			if within := g.MaxPriorityWithin(sib); within > max {
				max = within
			}
		}
		cur = n.Parent
		visited[cur] = true
	}
	return max
}
