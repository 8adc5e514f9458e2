package orchestrator

import (
	"context"
	"fmt"

	"steward/internal/api"
	"steward/internal/dependency"
	"steward/internal/model"
)

// tree builds the instance tree around c: its parent chain up to the root
// and every container below that root.
func (p *pass) tree(ctx context.Context, c *model.Container) (*dependency.Graph, error) {
	g := dependency.New()
	seen := map[string]bool{}

	add := func(n *model.Container, sequence int) {
		seen[n.ID] = true
		g.AddNode(dependency.Node{
			ID:           dependency.NodeID(n.ID),
			FriendlyName: n.Suffix,
			Parent:       dependency.NodeID(n.ParentID),
			Sequence:     sequence,
			Priority:     p.pendingPriority(n),
		})
	}
	sequenceOf := func(n *model.Container, parent *model.Container) int {
		if slot, _, ok := model.FindSlot(parent.Children, n.ParentSlotID); ok {
			return slot.Sequence
		}
		return 0
	}

	root := c
	for root.ParentID != "" && !seen[root.ParentID] {
		seen[root.ID] = true
		parent, err := p.o.store.GetContainer(ctx, root.ParentID)
		if api.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		add(root, sequenceOf(root, parent))
		root = parent
	}
	add(root, 0)

	var walk func(n *model.Container) error
	walk = func(n *model.Container) error {
		for _, slot := range n.SortedChildren() {
			if slot.ChildID == "" || seen[slot.ChildID] {
				continue
			}
			child, err := p.o.store.GetContainer(ctx, slot.ChildID)
			if api.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			add(child, slot.Sequence)
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	// c may not be recorded on its parent's slot yet.
	if c.ID != root.ID {
		if err := walk(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// pendingPriority is the priority of the version c is waiting to be
// upgraded to, zero when nothing is pending.
func (p *pass) pendingPriority(c *model.Container) int {
	if c.PendingVersion == "" {
		return 0
	}
	img, err := p.cat.Image(c.Image)
	if err != nil {
		return 0
	}
	v, ok := img.Version(c.PendingVersion)
	if !ok {
		return 0
	}
	return v.Priority
}

// checkPriority refuses to touch c while an upgrade with a higher priority
// is pending elsewhere in its tree. Upgrades pending below c count as its
// own, since updating c applies them.
func (p *pass) checkPriority(ctx context.Context, c *model.Container) (*dependency.Graph, error) {
	g, err := p.tree(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	own := g.MaxPriorityWithin(dependency.NodeID(c.ID))
	if other := g.MaxPriorityElsewhere(dependency.NodeID(c.ID)); other > own {
		return nil, fmt.Errorf("%w: %s waits for priority %d (own %d)", ErrPriorityBlocked, c.Suffix, other, own)
	}
	return g, nil
}
