package mock

import (
	"context"
	"strings"
	"sync"

	"steward/internal/api"
	"steward/internal/model"
	"steward/internal/remote"
)

// Command is one command recorded by the mock dialer.
type Command struct {
	Host string
	Argv []string
}

// Line joins the argv for easy matching in assertions.
func (c Command) Line() string {
	return strings.Join(c.Argv, " ")
}

// Response is returned for commands containing Match.
type Response struct {
	Match    string
	Output   string
	ExitCode int
}

// File is a file written through SendFile.
type File struct {
	Host    string
	Path    string
	Content string
}

// Dialer records every command executed through its sessions. Commands
// matching no response succeed with empty output.
type Dialer struct {
	mu        sync.Mutex
	commands  []Command
	files     []File
	responses []Response
	failHosts map[string]bool
	sessions  int
}

// NewDialer returns an empty recording dialer.
func NewDialer() *Dialer {
	return &Dialer{failHosts: make(map[string]bool)}
}

// Respond registers a canned response. Later registrations win.
func (d *Dialer) Respond(match, output string, exitCode int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append([]Response{{Match: match, Output: output, ExitCode: exitCode}}, d.responses...)
}

// Unreachable makes Connect fail for the named host.
func (d *Dialer) Unreachable(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failHosts[host] = true
}

// Connect opens a recording session.
func (d *Dialer) Connect(_ context.Context, host remote.Host) (remote.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failHosts[host.Name] {
		return nil, &api.ExecutionError{Host: host.Name, Err: context.DeadlineExceeded}
	}
	d.sessions++
	return &session{dialer: d, host: host.Name}, nil
}

// Commands returns a copy of the recorded commands.
func (d *Dialer) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.commands...)
}

// Lines returns the recorded commands as joined strings.
func (d *Dialer) Lines() []string {
	var lines []string
	for _, c := range d.Commands() {
		lines = append(lines, c.Line())
	}
	return lines
}

// Files returns a copy of the files sent.
func (d *Dialer) Files() []File {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]File(nil), d.files...)
}

// Index returns the position of the first recorded command containing
// match, or -1.
func (d *Dialer) Index(match string) int {
	for i, line := range d.Lines() {
		if strings.Contains(line, match) {
			return i
		}
	}
	return -1
}

// Count returns how many recorded commands contain match.
func (d *Dialer) Count(match string) int {
	n := 0
	for _, line := range d.Lines() {
		if strings.Contains(line, match) {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands and files.
func (d *Dialer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = nil
	d.files = nil
}

type session struct {
	dialer *Dialer
	host   string
}

func (s *session) Execute(_ context.Context, argv []string) (string, error) {
	d := s.dialer
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := Command{Host: s.host, Argv: append([]string(nil), argv...)}
	d.commands = append(d.commands, cmd)
	line := cmd.Line()
	for _, r := range d.responses {
		if strings.Contains(line, r.Match) {
			if r.ExitCode != 0 {
				return r.Output, &api.ExecutionError{Host: s.host, Argv: argv, ExitCode: r.ExitCode, Output: r.Output}
			}
			return r.Output, nil
		}
	}
	return "", nil
}

func (s *session) SendFile(_ context.Context, content []byte, remotePath string) error {
	d := s.dialer
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = append(d.files, File{Host: s.host, Path: remotePath, Content: string(content)})
	return nil
}

func (s *session) Close() error {
	return nil
}

// Prober reports the configured ports as listening and records every probe.
type Prober struct {
	mu     sync.Mutex
	Busy   map[int]bool
	probed []int
}

// InUse implements ports.Prober.
func (p *Prober) InUse(_ context.Context, _ *model.Server, port int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, port)
	return p.Busy[port], nil
}

// Probed returns the ports probed so far.
func (p *Prober) Probed() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.probed...)
}
