package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"steward/internal/model"
	"steward/internal/remote"
	"steward/pkg/logging"
)

// Save data lives under saveDir/<save name> on the server of each backup
// destination container. It is produced once on the server of the saved
// instance and copied from there.

// destination opens a session on the server hosting the backup container id.
func (p *pass) destination(ctx context.Context, backupID string) (remote.Session, *model.Server, error) {
	c, err := p.o.store.GetContainer(ctx, backupID)
	if err != nil {
		return nil, nil, err
	}
	return p.session(ctx, c.ServerID)
}

// shipment carries the data of one save to every backup destination.
type shipment struct {
	p      *pass
	source *target
	stage  func(ctx context.Context, dir string) error

	dir     string
	staged  bool
	holders map[string]bool // server ids holding a copy
}

func (p *pass) newShipment(source *target, stage func(ctx context.Context, dir string) error) *shipment {
	return &shipment{p: p, source: source, stage: stage, holders: make(map[string]bool)}
}

// send stages the data on the source server on first use, then copies it
// to the server of save's backup destination unless a copy is already there.
func (s *shipment) send(ctx context.Context, save *model.Save) error {
	if !s.staged {
		s.dir = path.Join(s.p.o.saveDir, save.Name)
		if err := s.stage(ctx, s.dir); err != nil {
			return err
		}
		s.staged = true
	}
	sess, srv, err := s.p.destination(ctx, save.BackupID)
	if err != nil {
		return fmt.Errorf("backup destination %s: %w", save.BackupID, err)
	}
	if s.holders[srv.ID] {
		return nil
	}
	if srv.ID != s.source.server.ID {
		logging.Info(orchestratorSubsystem, "Copying %s to %s", save.Name, srv.FullDomain())
		if err := copyTree(ctx, s.source.session, sess, s.dir); err != nil {
			return err
		}
	}
	s.holders[srv.ID] = true
	return nil
}

// cleanup removes the staged data from the source server when no
// destination lives there.
func (s *shipment) cleanup(ctx context.Context) {
	if !s.staged || s.holders[s.source.server.ID] {
		return
	}
	if _, err := s.source.session.Execute(ctx, remote.Shell("rm -rf "+shellescape.Quote(s.dir))); err != nil {
		logging.Warn(orchestratorSubsystem, "Failed to remove staged save %s on %s: %v", s.dir, s.source.server.FullDomain(), err)
	}
}

// fetchSave makes the data of save available on the server of t, copying it
// from the backup destination when it lives elsewhere. The returned
// shipment removes the fetched copy on cleanup.
func (p *pass) fetchSave(ctx context.Context, t *target, save *model.Save) (*shipment, error) {
	s := p.newShipment(t, nil)
	sess, srv, err := p.destination(ctx, save.BackupID)
	if err != nil {
		return nil, fmt.Errorf("backup destination %s: %w", save.BackupID, err)
	}
	if srv.ID == t.server.ID {
		return s, nil
	}
	s.dir = path.Join(p.o.saveDir, save.Name)
	logging.Info(orchestratorSubsystem, "Fetching %s from %s", save.Name, srv.FullDomain())
	if err := copyTree(ctx, sess, t.session, s.dir); err != nil {
		return nil, err
	}
	s.staged = true
	return s, nil
}

// copyTree copies dir from one server to the same path on another as a
// gzipped tarball relayed through this process.
func copyTree(ctx context.Context, from, to remote.Session, dir string) error {
	out, err := from.Execute(ctx, remote.Shell(fmt.Sprintf("tar czf - -C %s . | base64", shellescape.Quote(dir))))
	if err != nil {
		return err
	}
	archive, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(out), ""))
	if err != nil {
		return fmt.Errorf("failed to read archive of %s: %w", dir, err)
	}
	staged := dir + ".tar.gz"
	if err := to.SendFile(ctx, archive, staged); err != nil {
		return err
	}
	_, err = to.Execute(ctx, remote.Shell(fmt.Sprintf("mkdir -p %[1]s && tar xzf %[2]s -C %[1]s && rm -f %[2]s",
		shellescape.Quote(dir), shellescape.Quote(staged))))
	return err
}
