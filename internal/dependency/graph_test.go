package dependency

import (
	"testing"
)

// tree:
//
//	stack
//	├── pg (1, priority 5)
//	│   └── pg-data (1, priority 7)
//	└── odoo (2)
//	    ├── odoo-web (1, priority 3)
//	    └── odoo-cron (2)
func buildTree() *Graph {
	g := New()
	g.AddNode(Node{ID: "stack"})
	g.AddNode(Node{ID: "pg", Parent: "stack", Sequence: 1, Priority: 5})
	g.AddNode(Node{ID: "pg-data", Parent: "pg", Sequence: 1, Priority: 7})
	g.AddNode(Node{ID: "odoo", Parent: "stack", Sequence: 2})
	g.AddNode(Node{ID: "odoo-cron", Parent: "odoo", Sequence: 2})
	g.AddNode(Node{ID: "odoo-web", Parent: "odoo", Sequence: 1, Priority: 3})
	return g
}

func equalIDs(a, b []NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("New() returned nil")
	}
	if g.Len() != 0 {
		t.Fatalf("expected empty graph, got %d nodes", g.Len())
	}
}

func TestAddNode_Copies(t *testing.T) {
	g := New()
	n := Node{ID: "a", Priority: 1}
	g.AddNode(n)
	n.Priority = 9
	if got := g.Get("a").Priority; got != 1 {
		t.Errorf("expected stored priority 1, got %d", got)
	}
	if g.Get("missing") != nil {
		t.Error("expected nil for unknown node")
	}
}

func TestChildren(t *testing.T) {
	g := buildTree()
	tests := []struct {
		id       NodeID
		expected []NodeID
	}{
		{"stack", []NodeID{"pg", "odoo"}},
		{"odoo", []NodeID{"odoo-web", "odoo-cron"}},
		{"pg-data", nil},
	}
	for _, tt := range tests {
		if got := g.Children(tt.id); !equalIDs(got, tt.expected) {
			t.Errorf("Children(%s) = %v, want %v", tt.id, got, tt.expected)
		}
	}
}

func TestSiblingsAndDescendants(t *testing.T) {
	g := buildTree()
	if got := g.Siblings("odoo"); !equalIDs(got, []NodeID{"pg"}) {
		t.Errorf("Siblings(odoo) = %v", got)
	}
	if got := g.Siblings("stack"); got != nil {
		t.Errorf("root should have no siblings, got %v", got)
	}
	want := []NodeID{"pg", "pg-data", "odoo", "odoo-web", "odoo-cron"}
	if got := g.Descendants("stack"); !equalIDs(got, want) {
		t.Errorf("Descendants(stack) = %v, want %v", got, want)
	}
}

func TestMaxPriorityElsewhere(t *testing.T) {
	g := buildTree()
	tests := []struct {
		id       NodeID
		expected int
	}{
		// sibling pg subtree carries 7
		{"odoo-cron", 7},
		// own child pg-data does not count, odoo-web does
		{"pg", 3},
		{"pg-data", 3},
		// the root has no siblings at any level
		{"stack", 0},
	}
	for _, tt := range tests {
		if got := g.MaxPriorityElsewhere(tt.id); got != tt.expected {
			t.Errorf("MaxPriorityElsewhere(%s) = %d, want %d", tt.id, got, tt.expected)
		}
	}

	single := New()
	single.AddNode(Node{ID: "alone", Priority: 4})
	if got := single.MaxPriorityElsewhere("alone"); got != 0 {
		t.Errorf("expected 0 for a lone node, got %d", got)
	}
}

func TestMaxPriorityWithin(t *testing.T) {
	g := buildTree()
	tests := []struct {
		id       NodeID
		expected int
	}{
		{"stack", 7},
		{"pg", 7},
		{"odoo", 3},
		{"odoo-cron", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := g.MaxPriorityWithin(tt.id); got != tt.expected {
			t.Errorf("MaxPriorityWithin(%s) = %d, want %d", tt.id, got, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := buildTree().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dangling := New()
	dangling.AddNode(Node{ID: "a", Parent: "ghost"})
	if err := dangling.Validate(); err == nil {
		t.Error("expected error for unknown parent")
	}

	cycle := New()
	cycle.AddNode(Node{ID: "a", Parent: "b"})
	cycle.AddNode(Node{ID: "b", Parent: "a"})
	if err := cycle.Validate(); err == nil {
		t.Error("expected error for parent cycle")
	}
}
