package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"steward/internal/app"
	"steward/internal/model"
	"steward/internal/orchestrator"
)

var (
	createDeploy     bool
	createAutoCreate bool
)

// EnvironmentDefinition is the file format of 'create environment'.
type EnvironmentDefinition struct {
	Name    string   `yaml:"name"`
	Prefix  string   `yaml:"prefix"`
	Partner string   `yaml:"partner,omitempty"`
	Users   []string `yaml:"users,omitempty"`
}

// ServerDefinition is the file format of 'create server'.
type ServerDefinition struct {
	Name      string `yaml:"name"`
	Domain    string `yaml:"domain"`
	IP        string `yaml:"ip"`
	SSHPort   int    `yaml:"sshPort,omitempty"`
	Login     string `yaml:"login,omitempty"`
	StartPort int    `yaml:"startPort"`
	EndPort   int    `yaml:"endPort"`
	PublicIP  bool   `yaml:"publicIp,omitempty"`
}

// DomainDefinition is the file format of 'create domain'.
type DomainDefinition struct {
	Name         string `yaml:"name"`
	Organisation string `yaml:"organisation,omitempty"`
	Public       bool   `yaml:"public,omitempty"`
}

// SaveSettings are the save policy fields shared by containers and bases.
type SaveSettings struct {
	BackupIDs       []string `yaml:"backups,omitempty"`
	Autosave        *bool    `yaml:"autosave,omitempty"`
	TimeBetweenSave int      `yaml:"timeBetweenSave,omitempty"`
	SaveExpiration  int      `yaml:"saveExpiration,omitempty"`
	SaveComment     string   `yaml:"saveComment,omitempty"`
}

// ContainerDefinition is the file format of 'create container'.
type ContainerDefinition struct {
	Environment  string            `yaml:"environment"`
	Server       string            `yaml:"server"`
	Suffix       string            `yaml:"suffix"`
	Application  string            `yaml:"application"`
	Image        string            `yaml:"image,omitempty"`
	ImageVersion string            `yaml:"imageVersion,omitempty"`
	Options      map[string]string `yaml:"options,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
	Links        map[string]string `yaml:"links,omitempty"`
	Public       bool              `yaml:"public,omitempty"`
	SaveSettings `yaml:",inline"`
}

// BaseDefinition is the file format of 'create base'.
type BaseDefinition struct {
	Name        string `yaml:"name"`
	Domain      string `yaml:"domain"`
	Environment string `yaml:"environment,omitempty"`
	Title       string `yaml:"title,omitempty"`
	Application string `yaml:"application"`
	Container   string `yaml:"container,omitempty"`

	AdminName         string `yaml:"adminName,omitempty"`
	AdminPassword     string `yaml:"adminPassword,omitempty"`
	AdminEmail        string `yaml:"adminEmail,omitempty"`
	PoweruserName     string `yaml:"poweruserName,omitempty"`
	PoweruserPassword string `yaml:"poweruserPassword,omitempty"`
	PoweruserEmail    string `yaml:"poweruserEmail,omitempty"`

	Build   string `yaml:"build,omitempty"`
	SSLOnly bool   `yaml:"sslOnly,omitempty"`
	Test    bool   `yaml:"test,omitempty"`
	Lang    string `yaml:"lang,omitempty"`

	Options      map[string]string `yaml:"options,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
	Links        map[string]string `yaml:"links,omitempty"`
	SaveSettings `yaml:",inline"`
}

func (d ContainerDefinition) request() orchestrator.ContainerRequest {
	return orchestrator.ContainerRequest{
		EnvironmentID:   d.Environment,
		ServerID:        d.Server,
		Suffix:          d.Suffix,
		ApplicationCode: d.Application,
		Image:           d.Image,
		ImageVersion:    d.ImageVersion,
		Options:         d.Options,
		Metadata:        d.Metadata,
		LinkTargets:     d.Links,
		BackupIDs:       d.BackupIDs,
		Autosave:        d.Autosave,
		TimeBetweenSave: d.TimeBetweenSave,
		SaveExpiration:  d.SaveExpiration,
		SaveComment:     d.SaveComment,
		Public:          d.Public,
	}
}

func (d BaseDefinition) request() orchestrator.BaseRequest {
	return orchestrator.BaseRequest{
		Name:              d.Name,
		DomainID:          d.Domain,
		EnvironmentID:     d.Environment,
		Title:             d.Title,
		ApplicationCode:   d.Application,
		ContainerID:       d.Container,
		AdminName:         d.AdminName,
		AdminPassword:     d.AdminPassword,
		AdminEmail:        d.AdminEmail,
		PoweruserName:     d.PoweruserName,
		PoweruserPassword: d.PoweruserPassword,
		PoweruserEmail:    d.PoweruserEmail,
		Build:             model.BuildMode(d.Build),
		SSLOnly:           d.SSLOnly,
		Test:              d.Test,
		Lang:              d.Lang,
		Options:           d.Options,
		Metadata:          d.Metadata,
		LinkTargets:       d.Links,
		BackupIDs:         d.BackupIDs,
		Autosave:          d.Autosave,
		TimeBetweenSave:   d.TimeBetweenSave,
		SaveExpiration:    d.SaveExpiration,
		SaveComment:       d.SaveComment,
	}
}

var createResourceTypes = []model.Kind{"environment", model.KindServer, "domain", model.KindContainer, model.KindBase}

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create <environment|server|domain|container|base> <file>",
	Short: "Create a resource from a definition file",
	Long: `Create a resource from a YAML definition file, or from stdin with '-'.

Containers and bases are reconciled against the catalog when created: their
options, ports, volumes and links are filled in from the application. Use
--deploy to deploy them right away.

Examples:
  steward create server servers/node1.yaml
  steward create container odoo.yaml --deploy
  steward create base - --auto-create < shop.yaml`,
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE:                  runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().BoolVar(&createDeploy, "deploy", false, "Deploy the container or base after creating it")
	createCmd.Flags().BoolVar(&createAutoCreate, "auto-create", false, "Create and deploy a container for a base that names none")
}

func runCreate(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0], createResourceTypes)
	if err != nil {
		return err
	}
	content, err := readResourceFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read resource file: %w", err)
	}

	application, err := openApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	created, err := createResource(ctx, application.Services(), kind, content)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	return formatter.FormatData(created)
}

// createResource decodes a definition of kind and stores it.
func createResource(ctx context.Context, s *app.Services, kind model.Kind, content []byte) (interface{}, error) {
	opts := orchestrator.Options{NoEnqueue: true, AutoCreate: createAutoCreate}

	switch kind {
	case "environment":
		var def EnvironmentDefinition
		if err := decodeDefinition(content, &def); err != nil {
			return nil, err
		}
		e := &model.Environment{Name: def.Name, Prefix: def.Prefix, Partner: def.Partner, Users: def.Users}
		return e, s.Store.CreateEnvironment(ctx, e)

	case model.KindServer:
		var def ServerDefinition
		if err := decodeDefinition(content, &def); err != nil {
			return nil, err
		}
		srv := &model.Server{
			Name: def.Name, Domain: def.Domain, IP: def.IP, SSHPort: def.SSHPort, Login: def.Login,
			StartPort: def.StartPort, EndPort: def.EndPort, PublicIP: def.PublicIP,
		}
		if err := s.Store.CreateServer(ctx, srv); err != nil {
			return nil, err
		}
		// Generates the key pair to authorize on the server.
		srv, err := s.Keys.Ensure(ctx, srv.ID)
		if err != nil {
			return nil, err
		}
		srv.PrivateKey = ""
		return srv, nil

	case "domain":
		var def DomainDefinition
		if err := decodeDefinition(content, &def); err != nil {
			return nil, err
		}
		d := &model.Domain{Name: def.Name, Organisation: def.Organisation, Public: def.Public}
		return d, s.Store.CreateDomain(ctx, d)

	case model.KindContainer:
		var def ContainerDefinition
		if err := decodeDefinition(content, &def); err != nil {
			return nil, err
		}
		c, err := s.Orchestrator.CreateContainer(ctx, def.request(), opts)
		if err != nil || !createDeploy {
			return c, err
		}
		return c, runAction(ctx, s, orchestrator.ActionDeploy, model.KindContainer, []string{c.ID}, opts)

	case model.KindBase:
		var def BaseDefinition
		if err := decodeDefinition(content, &def); err != nil {
			return nil, err
		}
		b, err := s.Orchestrator.CreateBase(ctx, def.request(), opts)
		if err != nil || !createDeploy {
			return b, err
		}
		return b, runAction(ctx, s, orchestrator.ActionDeploy, model.KindBase, []string{b.ID}, opts)
	}
	return nil, fmt.Errorf("cannot create %s", kind)
}

func decodeDefinition(content []byte, out interface{}) error {
	if err := yaml.Unmarshal(content, out); err != nil {
		return fmt.Errorf("failed to parse definition YAML: %w", err)
	}
	return nil
}

// readResourceFile reads a resource definition file or from stdin
func readResourceFile(filename string) ([]byte, error) {
	var reader io.Reader

	if filename == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		reader = file
	}

	return io.ReadAll(reader)
}
