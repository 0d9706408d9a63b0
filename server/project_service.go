package server

import (
	"sync"

	"github.com/meng-cz/vulsim-rpc/message"
)

// Backend result codes used by the reference services. 0 is success; the
// rest mirror conditions IDE builds are known to handle.
const (
	codeOK        = 0
	codeNoProject = -11 // info with no open project
	codeNotFound  = -12
	codeExists    = -13
	codeBadArgs   = -14
)

// ProjectService is the root service of a VulSim backend: design projects
// that are created, listed, loaded, saved, and closed. vulsimd hosts it
// in memory; nothing persists across restarts.
type ProjectService struct {
	mu       sync.Mutex
	projects map[string]bool // name → saved
	current  string
	feed     func(message.LogEntry) // optional, publishes activity to the log channel
}

// NewProjectService returns an empty project store. The publish hook may be
// nil; vulsimd passes Server.Publish so IDE log docks see activity.
func NewProjectService(publish func(message.LogEntry)) *ProjectService {
	return &ProjectService{
		projects: make(map[string]bool),
		feed:     publish,
	}
}

func (p *ProjectService) emit(level, msg string) {
	if p.feed != nil {
		p.feed(message.NewLogEntry(level, "project", msg))
	}
}

// Info reports the currently open project. With nothing open the backend
// answers codeNoProject: connected but idle, which the monitor maps to
// "no open project" rather than a failure.
func (p *ProjectService) Info(_ []message.Arg) message.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return message.Errorf(codeNoProject, "no open project")
	}
	return message.Response{
		"code":    codeOK,
		"results": map[string]any{"name": p.current},
	}
}

// List enumerates known projects.
func (p *ProjectService) List(_ []message.Arg) message.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.projects))
	for name := range p.projects {
		names = append(names, name)
	}
	return message.Response{
		"code":         codeOK,
		"list_results": map[string]any{"project_names": names},
	}
}

// Create makes a new project and opens it.
func (p *ProjectService) Create(args []message.Arg) message.Response {
	name, ok := message.Lookup(args, "name", 0)
	if !ok || name.Text() == "" {
		return message.Errorf(codeBadArgs, "missing project name")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.projects[name.Text()] {
		return message.Errorf(codeExists, "project already exists: %s", name.Text())
	}
	p.projects[name.Text()] = true
	p.current = name.Text()
	p.emit("info", "project created: "+p.current)
	return message.Response{"code": codeOK}
}

// Load opens an existing project.
func (p *ProjectService) Load(args []message.Arg) message.Response {
	name, ok := message.Lookup(args, "name", 0)
	if !ok || name.Text() == "" {
		return message.Errorf(codeBadArgs, "missing project name")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.projects[name.Text()] {
		return message.Errorf(codeNotFound, "no such project: %s", name.Text())
	}
	p.current = name.Text()
	p.emit("info", "project loaded: "+p.current)
	return message.Response{"code": codeOK}
}

// Save persists the open project. The in-memory stub only validates that
// one is open.
func (p *ProjectService) Save(_ []message.Arg) message.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return message.Errorf(codeNoProject, "no open project")
	}
	p.emit("info", "project saved: "+p.current)
	return message.Response{"code": codeOK}
}

// Cancel closes the open project without saving.
func (p *ProjectService) Cancel(_ []message.Arg) message.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == "" {
		return message.Errorf(codeNoProject, "no open project")
	}
	p.emit("info", "project closed: "+p.current)
	p.current = ""
	return message.Response{"code": codeOK}
}
