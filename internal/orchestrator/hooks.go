package orchestrator

import (
	"context"
	"fmt"
	"path"
	"strings"

	"steward/internal/catalog"
	"steward/internal/model"
	"steward/internal/remote"
	"steward/internal/template"
	"steward/pkg/logging"
)

// target is a container with everything needed to run commands in it.
type target struct {
	container *model.Container
	env       *model.Environment
	app       *catalog.Application
	appType   *catalog.ApplicationType
	server    *model.Server
	session   remote.Session
}

func (t *target) name() string {
	return model.ContainerName(t.env.Prefix, t.container.Suffix)
}

func (t *target) fullname() string {
	return model.ContainerFullname(t.env.Prefix, t.container.Suffix, t.server)
}

// target loads a container with its environment, application and session.
func (p *pass) target(ctx context.Context, c *model.Container) (*target, error) {
	env, err := p.o.store.GetEnvironment(ctx, c.EnvironmentID)
	if err != nil {
		return nil, err
	}
	app, err := p.application(c.ApplicationCode)
	if err != nil {
		return nil, err
	}
	sess, srv, err := p.session(ctx, c.ServerID)
	if err != nil {
		return nil, err
	}
	return &target{
		container: c,
		env:       env,
		app:       app,
		appType:   p.applicationType(app),
		server:    srv,
		session:   sess,
	}, nil
}

func (t *target) context() map[string]interface{} {
	c := t.container
	hostPorts := make(map[string]int, len(c.Ports))
	for _, b := range c.Ports {
		hostPorts[b.Name] = b.HostPort
	}
	metadata := make(map[string]string, len(c.Metadata))
	for _, m := range c.Metadata {
		metadata[m.Name] = m.Value
	}
	return map[string]interface{}{
		"id":          c.ID,
		"name":        t.name(),
		"fullname":    t.fullname(),
		"suffix":      c.Suffix,
		"application": c.ApplicationCode,
		"image":       c.Image,
		"version":     c.ImageVersion,
		"server":      t.server.FullDomain(),
		"serverIp":    t.server.IP,
		"user":        t.appType.SystemUser,
		"localPath":   t.appType.LocalPath,
		"options":     mergeStrings(t.app.Options, model.OptionValues(c.Options)),
		"metadata":    metadata,
		"ports":       hostPorts,
	}
}

func baseContext(b *model.Base, d *model.Domain, appType *catalog.ApplicationType) map[string]interface{} {
	fulldomain := model.BaseFullDomain(b.Name, d.Name)
	fullname := model.BaseFullname(b.ApplicationCode, fulldomain)
	metadata := make(map[string]string, len(b.Metadata))
	for _, m := range b.Metadata {
		metadata[m.Name] = m.Value
	}
	return map[string]interface{}{
		"id":         b.ID,
		"name":       b.Name,
		"title":      b.Title,
		"domain":     d.Name,
		"fulldomain": fulldomain,
		"fullname":   fullname,
		"databases":  model.BaseDatabases(fullname, appType.MultipleDatabases),
		"lang":       b.Lang,
		"sslOnly":    b.SSLOnly,
		"test":       b.Test,
		"options":    model.OptionValues(b.Options),
		"metadata":   metadata,
		"admin": map[string]string{
			"name":     b.AdminName,
			"password": b.AdminPassword,
			"email":    b.AdminEmail,
		},
		"poweruser": map[string]string{
			"name":     b.PoweruserName,
			"password": b.PoweruserPassword,
			"email":    b.PoweruserEmail,
		},
	}
}

func saveContext(s *model.Save, dir string) map[string]interface{} {
	return map[string]interface{}{
		"id":         s.ID,
		"name":       s.Name,
		"generation": s.Generation,
		"comment":    s.Comment,
		"path":       path.Join(dir, s.Name),
	}
}

func mergeStrings(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// hook runs a named hook of the target's application. A hook the application
// does not declare is a no-op. Extra values are merged over the container
// context, which is available as .container as well.
func (p *pass) hook(ctx context.Context, t *target, name string, extra map[string]interface{}) error {
	return p.hookOf(ctx, t, t.app, name, extra)
}

// hookOf runs a hook of app inside (or on the host of) t.
func (p *pass) hookOf(ctx context.Context, t *target, app *catalog.Application, name string, extra map[string]interface{}) error {
	h, ok := app.Hook(name)
	if !ok {
		logging.Debug(orchestratorSubsystem, "No %s hook for %s", name, app.Code)
		return nil
	}
	cc := t.context()
	// Optional sections are always present so templates can test them.
	optional := map[string]interface{}{"base": nil, "save": nil, "link": nil, "build": nil}
	data := template.MergeContexts(optional, cc, map[string]interface{}{"container": cc}, extra)
	cmd, err := p.o.templates.Render(h.Run, data)
	if err != nil {
		return fmt.Errorf("failed to render %s hook of %s: %w", name, app.Code, err)
	}
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil
	}

	logging.Info(orchestratorSubsystem, "Running %s hook of %s on %s", name, app.Code, t.fullname())
	if h.Host {
		_, err = t.session.Execute(ctx, remote.Shell(cmd))
	} else {
		_, err = p.o.runtime.Exec(ctx, t.session, t.name(), t.appType.SystemUser, cmd)
	}
	if err != nil {
		return fmt.Errorf("%s hook of %s failed: %w", name, t.fullname(), err)
	}
	return nil
}
