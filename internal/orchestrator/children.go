package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"steward/internal/api"
	"steward/internal/model"
	"steward/pkg/logging"
)

// deployChildren creates and deploys every child of c in ascending sequence.
// Each child is fully deployed before the next one is created.
func (p *pass) deployChildren(ctx context.Context, c *model.Container) error {
	for _, slot := range c.SortedChildren() {
		if err := p.createChild(ctx, c.ID, slot.ID); err != nil {
			return err
		}
	}
	parent, err := p.o.store.GetContainer(ctx, c.ID)
	if err != nil {
		return err
	}
	parent.State = model.ContainerDeployed
	return p.o.store.UpdateContainer(ctx, parent)
}

// purgeChildren purges and deletes the children of c in descending sequence.
func (p *pass) purgeChildren(ctx context.Context, c *model.Container) error {
	slots := c.SortedChildren()
	for i := len(slots) - 1; i >= 0; i-- {
		if err := p.deleteChild(ctx, c.ID, slots[i].ID); err != nil {
			return err
		}
	}
	parent, err := p.o.store.GetContainer(ctx, c.ID)
	if err != nil {
		return err
	}
	parent.State = model.ContainerAbsent
	return p.o.store.UpdateContainer(ctx, parent)
}

// createChild replaces the child of a slot with a new container named
// <parent suffix>-<application>, deploys it and restores the save pending on
// the slot.
func (p *pass) createChild(ctx context.Context, parentID, slotID string) error {
	parent, err := p.o.store.GetContainer(ctx, parentID)
	if err != nil {
		return err
	}
	slot, _, ok := model.FindSlot(parent.Children, slotID)
	if !ok {
		return api.NewNotFoundError("child slot", slotID)
	}
	if slot.ChildID != "" {
		if err := p.deleteChild(ctx, parentID, slotID); err != nil {
			return err
		}
		if parent, err = p.o.store.GetContainer(ctx, parentID); err != nil {
			return err
		}
		slot, _, _ = model.FindSlot(parent.Children, slotID)
	}

	serverID := slot.ServerID
	if serverID == "" {
		serverID = parent.ServerID
	}
	logging.Info(orchestratorSubsystem, "Creating child %s of %s (sequence %d)", slot.Application, parent.Suffix, slot.Sequence)
	child, err := p.createContainer(ctx, ContainerRequest{
		EnvironmentID:   parent.EnvironmentID,
		ServerID:        serverID,
		Suffix:          parent.Suffix + "-" + slot.Application,
		ApplicationCode: slot.Application,
		ParentID:        parent.ID,
		ParentSlotID:    slot.ID,
	}, parent.BackupIDs)
	if err != nil {
		return err
	}
	if err := p.acceptChild(ctx, parent, slot, child); err != nil {
		return err
	}

	if err := p.deployContainer(ctx, child); err != nil {
		return err
	}

	if slot.SaveID != "" {
		save, err := p.o.store.GetSave(ctx, slot.SaveID)
		if err != nil {
			return err
		}
		if err := p.restoreContainer(ctx, child, save); err != nil {
			return err
		}
		if parent, err = p.o.store.GetContainer(ctx, parentID); err != nil {
			return err
		}
		if _, idx, ok := model.FindSlot(parent.Children, slotID); ok {
			parent.Children[idx].SaveID = ""
			return p.o.store.UpdateContainer(ctx, parent)
		}
	}
	return nil
}

// acceptChild records child on the slot once its back reference matches
// the slot exactly and the tree it joins has no cycle.
func (p *pass) acceptChild(ctx context.Context, parent *model.Container, slot model.ChildSlot, child *model.Container) error {
	if child.ParentID != parent.ID || child.ParentSlotID != slot.ID {
		return fmt.Errorf("child %s does not reference slot %s of %s", child.Suffix, slot.ID, parent.Suffix)
	}
	// The slot has to point at the child before the tree can be checked.
	parent, err := p.o.store.GetContainer(ctx, parent.ID)
	if err != nil {
		return err
	}
	_, idx, ok := model.FindSlot(parent.Children, slot.ID)
	if !ok {
		return api.NewNotFoundError("child slot", slot.ID)
	}
	parent.Children[idx].ChildID = child.ID
	if err := p.o.store.UpdateContainer(ctx, parent); err != nil {
		return err
	}

	g, err := p.tree(ctx, child)
	if err != nil {
		return err
	}
	return g.Validate()
}

// deleteChild purges the child of a slot, keeps its last save on the slot for
// the next creation and deletes the child record.
func (p *pass) deleteChild(ctx context.Context, parentID, slotID string) error {
	parent, err := p.o.store.GetContainer(ctx, parentID)
	if err != nil {
		return err
	}
	slot, _, ok := model.FindSlot(parent.Children, slotID)
	if !ok || slot.ChildID == "" {
		return nil
	}

	child, err := p.o.store.GetContainer(ctx, slot.ChildID)
	switch {
	case api.IsNotFound(err):
		child = nil
	case err != nil:
		return err
	}

	var saveID string
	if child != nil {
		logging.Info(orchestratorSubsystem, "Deleting child %s of %s", child.Suffix, parent.Suffix)
		save, err := p.purgeContainer(ctx, child)
		if err != nil {
			return err
		}
		if save != nil {
			saveID = save.ID
		}
		if err := p.o.store.DeleteContainer(ctx, child.ID); err != nil {
			return err
		}
	}

	if parent, err = p.o.store.GetContainer(ctx, parentID); err != nil {
		return err
	}
	_, idx, ok := model.FindSlot(parent.Children, slotID)
	if !ok {
		return nil
	}
	parent.Children[idx].ChildID = ""
	if saveID != "" {
		parent.Children[idx].SaveID = saveID
	}
	return p.o.store.UpdateContainer(ctx, parent)
}

// deployBaseChildren creates and deploys the children of a base in ascending
// sequence.
func (p *pass) deployBaseChildren(ctx context.Context, b *model.Base) error {
	for _, slot := range b.SortedChildren() {
		if err := p.createBaseChild(ctx, b.ID, slot.ID); err != nil {
			return err
		}
	}
	parent, err := p.o.store.GetBase(ctx, b.ID)
	if err != nil {
		return err
	}
	parent.State = model.BaseEnabled
	return p.o.store.UpdateBase(ctx, parent)
}

func (p *pass) purgeBaseChildren(ctx context.Context, b *model.Base) error {
	slots := b.SortedChildren()
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Sequence > slots[j].Sequence })
	for _, slot := range slots {
		if err := p.deleteBaseChild(ctx, b.ID, slot.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) createBaseChild(ctx context.Context, parentID, slotID string) error {
	parent, err := p.o.store.GetBase(ctx, parentID)
	if err != nil {
		return err
	}
	slot, _, ok := model.FindSlot(parent.Children, slotID)
	if !ok {
		return api.NewNotFoundError("child slot", slotID)
	}
	if slot.ChildID != "" {
		if err := p.deleteBaseChild(ctx, parentID, slotID); err != nil {
			return err
		}
		if parent, err = p.o.store.GetBase(ctx, parentID); err != nil {
			return err
		}
		slot, _, _ = model.FindSlot(parent.Children, slotID)
	}

	containerID, err := p.childBaseContainer(ctx, parent, slot)
	if err != nil {
		return err
	}
	build := parent.Build
	if slot.SaveID != "" {
		build = model.BuildRestore
	}
	child, err := p.createBase(ctx, BaseRequest{
		Name:            parent.Name + "-" + slot.Application,
		DomainID:        parent.DomainID,
		EnvironmentID:   parent.EnvironmentID,
		Title:           parent.Title,
		ApplicationCode: slot.Application,
		ContainerID:     containerID,
		AdminName:       parent.AdminName,
		AdminPassword:   parent.AdminPassword,
		AdminEmail:      parent.AdminEmail,
		Build:           build,
		Lang:            parent.Lang,
		ParentID:        parent.ID,
		ParentSlotID:    slot.ID,
		RestoreSaveID:   slot.SaveID,
	}, parent.BackupIDs)
	if err != nil {
		return err
	}
	if child.ParentID != parent.ID || child.ParentSlotID != slot.ID {
		return fmt.Errorf("child %s does not reference slot %s of %s", child.Name, slot.ID, parent.Name)
	}
	if parent, err = p.o.store.GetBase(ctx, parentID); err != nil {
		return err
	}
	if _, idx, ok := model.FindSlot(parent.Children, slotID); ok {
		parent.Children[idx].ChildID = child.ID
		parent.Children[idx].SaveID = ""
		if err := p.o.store.UpdateBase(ctx, parent); err != nil {
			return err
		}
	}
	return p.deployBase(ctx, child)
}

// childBaseContainer finds the container hosting a child base: the parent's
// host container child of the same application, else the application's
// default container.
func (p *pass) childBaseContainer(ctx context.Context, parent *model.Base, slot model.ChildSlot) (string, error) {
	host, err := p.o.store.GetContainer(ctx, parent.ContainerID)
	if err != nil {
		return "", err
	}
	if host.ApplicationCode == slot.Application {
		return host.ID, nil
	}
	for _, s := range host.Children {
		if s.Application == slot.Application && s.ChildID != "" {
			return s.ChildID, nil
		}
	}
	app, err := p.application(slot.Application)
	if err != nil {
		return "", err
	}
	if app.NextContainer != "" {
		return app.NextContainer, nil
	}
	return "", api.NewValidationError("base", "container", fmt.Sprintf("no container of %s found for child of %s", slot.Application, parent.Name))
}

func (p *pass) deleteBaseChild(ctx context.Context, parentID, slotID string) error {
	parent, err := p.o.store.GetBase(ctx, parentID)
	if err != nil {
		return err
	}
	slot, _, ok := model.FindSlot(parent.Children, slotID)
	if !ok || slot.ChildID == "" {
		return nil
	}

	var saveID string
	child, err := p.o.store.GetBase(ctx, slot.ChildID)
	switch {
	case api.IsNotFound(err):
	case err != nil:
		return err
	default:
		save, err := p.purgeBase(ctx, child)
		if err != nil {
			return err
		}
		if save != nil {
			saveID = save.ID
		}
		if err := p.o.store.DeleteBase(ctx, child.ID); err != nil {
			return err
		}
	}

	if parent, err = p.o.store.GetBase(ctx, parentID); err != nil {
		return err
	}
	if _, idx, ok := model.FindSlot(parent.Children, slotID); ok {
		parent.Children[idx].ChildID = ""
		if saveID != "" {
			parent.Children[idx].SaveID = saveID
		}
		return p.o.store.UpdateBase(ctx, parent)
	}
	return nil
}
