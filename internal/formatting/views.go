package formatting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"steward/internal/catalog"
	"steward/internal/model"
	stringsutil "steward/pkg/strings"
)

const timeLayout = "2006-01-02 15:04"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func colorState(state string) string {
	switch state {
	case string(model.ContainerDeployed), string(model.BaseEnabled), string(model.ActionDone):
		return text.FgGreen.Sprint(state)
	case string(model.BaseBlocked), string(model.ActionFailed):
		return text.FgRed.Sprint(state)
	case "":
		return text.FgHiBlack.Sprint("absent")
	default:
		return text.FgYellow.Sprint(state)
	}
}

// ContainersTable lists containers.
func ContainersTable(containers []model.Container) Table {
	t := Table{
		Title:   "containers",
		Headers: []string{"ID", "SUFFIX", "APPLICATION", "IMAGE", "STATE", "PARENT", "NEXT SAVE"},
	}
	if len(containers) > 0 {
		t.Data = containers
	}
	for _, c := range containers {
		t.Rows = append(t.Rows, []interface{}{
			c.ID,
			c.Suffix,
			c.ApplicationCode,
			orDash(c.Image + ":" + c.ImageVersion),
			colorState(string(c.State)),
			orDash(c.ParentID),
			formatTime(c.DateNextSave),
		})
	}
	return t
}

// BasesTable lists bases.
func BasesTable(bases []model.Base) Table {
	t := Table{
		Title:   "bases",
		Headers: []string{"ID", "NAME", "APPLICATION", "CONTAINER", "BUILD", "STATE", "NEXT SAVE"},
	}
	if len(bases) > 0 {
		t.Data = bases
	}
	for _, b := range bases {
		t.Rows = append(t.Rows, []interface{}{
			b.ID,
			b.Name,
			b.ApplicationCode,
			b.ContainerID,
			orDash(string(b.Build)),
			colorState(string(b.State)),
			formatTime(b.DateNextSave),
		})
	}
	return t
}

// SavesTable lists saves, newest generation first as returned by the store.
func SavesTable(saves []model.Save) Table {
	t := Table{
		Title:   "saves",
		Headers: []string{"ID", "NAME", "GENERATION", "BACKUP", "EXPIRATION", "COMMENT"},
	}
	if len(saves) > 0 {
		t.Data = saves
	}
	for _, s := range saves {
		exp := s.Expiration
		t.Rows = append(t.Rows, []interface{}{
			s.ID,
			s.Name,
			s.Generation,
			orDash(s.BackupID),
			formatTime(&exp),
			orDash(stringsutil.Truncate(s.Comment, stringsutil.DefaultMaxLen)),
		})
	}
	return t
}

// ActionsTable lists action log entries.
func ActionsTable(actions []model.ActionLog) Table {
	t := Table{
		Title:   "actions",
		Headers: []string{"ID", "ACTION", "TARGET", "STATE", "CREATED", "FINISHED", "ERROR"},
	}
	if len(actions) > 0 {
		t.Data = actions
	}
	for _, a := range actions {
		created := a.CreatedAt
		errMsg := stringsutil.Truncate(a.Error, stringsutil.DefaultMaxLen)
		t.Rows = append(t.Rows, []interface{}{
			a.ID,
			a.Action,
			string(a.TargetKind) + "/" + a.TargetID,
			colorState(string(a.State)),
			formatTime(&created),
			formatTime(a.FinishedAt),
			orDash(errMsg),
		})
	}
	return t
}

// VersionsTable lists application versions.
func VersionsTable(versions []model.ApplicationVersion) Table {
	t := Table{
		Title:   "versions",
		Headers: []string{"ID", "APPLICATION", "NAME", "ARCHIVE", "CREATED"},
	}
	if len(versions) > 0 {
		t.Data = versions
	}
	for _, v := range versions {
		created := v.CreatedAt
		t.Rows = append(t.Rows, []interface{}{v.ID, v.ApplicationCode, v.Name, v.ArchiveID, formatTime(&created)})
	}
	return t
}

// ServersTable lists servers.
func ServersTable(servers []model.Server) Table {
	t := Table{
		Title:   "servers",
		Headers: []string{"ID", "NAME", "IP", "SSH PORT", "PORT RANGE", "KEY"},
	}
	if len(servers) > 0 {
		t.Data = servers
	}
	for _, s := range servers {
		key := text.FgYellow.Sprint("pending")
		if s.PublicKey != "" {
			key = text.FgGreen.Sprint("generated")
		}
		t.Rows = append(t.Rows, []interface{}{
			s.ID,
			s.FullDomain(),
			s.IP,
			s.SSHPort,
			fmt.Sprintf("%d-%d", s.StartPort, s.EndPort),
			key,
		})
	}
	return t
}

// DomainsTable lists domains.
func DomainsTable(domains []model.Domain) Table {
	t := Table{
		Title:   "domains",
		Headers: []string{"ID", "NAME", "ORGANISATION", "PUBLIC"},
	}
	if len(domains) > 0 {
		t.Data = domains
	}
	for _, d := range domains {
		t.Rows = append(t.Rows, []interface{}{d.ID, d.Name, orDash(d.Organisation), d.Public})
	}
	return t
}

// ApplicationsTable lists catalog applications sorted by code.
func ApplicationsTable(apps []*catalog.Application) Table {
	t := Table{
		Title:   "applications",
		Headers: []string{"CODE", "TYPE", "VERSION", "IMAGE", "LINKS", "CHILDREN", "TAGS"},
	}
	if len(apps) > 0 {
		t.Data = apps
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Code < apps[j].Code })
	for _, a := range apps {
		t.Rows = append(t.Rows, []interface{}{
			a.Code,
			a.Type,
			orDash(a.CurrentVersion),
			orDash(a.Image),
			len(a.Links),
			len(a.Children),
			orDash(strings.Join(a.Tags, ",")),
		})
	}
	return t
}
