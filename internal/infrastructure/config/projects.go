package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectsConfig is the registry of projects in a workspace (read/write).
type ProjectsConfig struct {
	Default  string                  `yaml:"default,omitempty"`
	Projects map[string]ProjectEntry `yaml:"projects,omitempty"`
}

// ProjectEntry holds metadata for one project.
type ProjectEntry struct {
	Description    string `yaml:"description,omitempty"`
	MainTimelineID string `yaml:"main_timeline_id,omitempty"`
}

// LoadProjects loads the project registry from the .canon directory.
func LoadProjects(basePath string) (*ProjectsConfig, error) {
	projectsFile := ProjectsFilePath(basePath)

	data, err := os.ReadFile(projectsFile)
	if os.IsNotExist(err) {
		// Return empty config if file doesn't exist
		return &ProjectsConfig{
			Projects: make(map[string]ProjectEntry),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading projects file: %w", err)
	}

	var cfg ProjectsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing projects file: %w", err)
	}

	if cfg.Projects == nil {
		cfg.Projects = make(map[string]ProjectEntry)
	}

	return &cfg, nil
}

// Save writes the project registry.
func (p *ProjectsConfig) Save(basePath string) error {
	configDir := filepath.Join(basePath, DefaultConfigDir)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling projects config: %w", err)
	}

	if err := os.WriteFile(ProjectsFilePath(basePath), data, 0600); err != nil {
		return fmt.Errorf("writing projects file: %w", err)
	}

	return nil
}

// Add registers a project. The first project added becomes the default.
func (p *ProjectsConfig) Add(id string, entry ProjectEntry) {
	if p.Projects == nil {
		p.Projects = make(map[string]ProjectEntry)
	}
	p.Projects[id] = entry
	if p.Default == "" {
		p.Default = id
	}
}

// Names returns the registered project ids in sorted order.
func (p *ProjectsConfig) Names() []string {
	names := make([]string, 0, len(p.Projects))
	for k := range p.Projects {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the project id to use: the explicit one when given,
// otherwise the registry default.
func (p *ProjectsConfig) Resolve(explicit string) (string, error) {
	id := explicit
	if id == "" {
		id = p.Default
	}
	if id == "" {
		return "", errors.New("no project selected (use --project or run 'canon init')")
	}
	if _, ok := p.Projects[id]; !ok {
		names := p.Names()
		if len(names) > 5 {
			names = append(names[:5], "...")
		}
		return "", fmt.Errorf("project %q not found (available: %s)", id, strings.Join(names, ", "))
	}
	return id, nil
}

// Exists checks if a project is registered.
func (p *ProjectsConfig) Exists(id string) bool {
	_, ok := p.Projects[id]
	return ok
}
