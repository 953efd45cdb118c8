// Package appspec loads app specifications: display metadata, the output widget
// and the output-binding spec for each (app id, tag) pair.
package appspec

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/binding"
)

const (
	// DefaultTag is the release channel assumed when none is given.
	DefaultTag = "release"
	// DefaultWidget renders output for apps that declare no widget.
	DefaultWidget = "kbaseDefaultNarrativeOutput"
)

// Spec describes one app at one release tag.
type Spec struct {
	ID           string
	Name         string
	Version      string
	Tag          string
	OutputWidget string
	Output       binding.Spec

	// BrokenPaths lists targets whose output path did not parse. They render as null.
	BrokenPaths []string
}

type specFile struct {
	Info struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Version string `yaml:"ver"`
	} `yaml:"info"`
	Tag     string `yaml:"tag"`
	Widgets struct {
		Output string `yaml:"output"`
	} `yaml:"widgets"`
	Behavior struct {
		OutputMapping binding.Spec `yaml:"kb_service_output_mapping"`
	} `yaml:"behavior"`
}

// Parse decodes a single app spec document.
func Parse(data []byte) (*Spec, error) {
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse app spec: %w", err)
	}
	if f.Info.ID == "" {
		return nil, apperrors.Validation("info.id", "app spec is missing info.id")
	}

	spec := &Spec{
		ID:           f.Info.ID,
		Name:         f.Info.Name,
		Version:      f.Info.Version,
		Tag:          f.Tag,
		OutputWidget: f.Widgets.Output,
		Output:       f.Behavior.OutputMapping,
	}
	if spec.Tag == "" {
		spec.Tag = DefaultTag
	}
	if spec.OutputWidget == "" {
		spec.OutputWidget = DefaultWidget
	}
	if spec.Output == nil {
		spec.Output = binding.Spec{}
	}
	for _, b := range spec.Output {
		if err := b.PathErr(); err != nil {
			spec.BrokenPaths = append(spec.BrokenPaths, b.Target)
			slog.Warn("app spec output path will resolve to null",
				"app_id", spec.ID, "target", b.Target, "error", err)
		}
	}
	return spec, nil
}

type key struct {
	appID string
	tag   string
}

// Registry holds app specs keyed by (app id, tag). It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	specs map[key]*Spec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[key]*Spec)}
}

// LoadDir parses every *.yaml and *.yml file in dir. A missing directory yields an
// empty registry.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("app spec directory not found, starting with no specs", "dir", dir)
			return r, nil
		}
		return nil, fmt.Errorf("reading app spec directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading app spec %s: %w", name, err)
		}
		spec, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if err := r.Add(spec); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	slog.Info("app specs loaded", "dir", dir, "count", r.Len())
	return r, nil
}

// Add registers spec. Registering the same (app id, tag) twice is an error.
func (r *Registry) Add(spec *Spec) error {
	tag := spec.Tag
	if tag == "" {
		tag = DefaultTag
	}
	k := key{appID: spec.ID, tag: tag}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[k]; exists {
		return apperrors.Validation("info.id", fmt.Sprintf("app spec %s@%s is already registered", spec.ID, tag))
	}
	r.specs[k] = spec
	return nil
}

// Get returns the spec for appID at tag. An empty tag means DefaultTag.
func (r *Registry) Get(appID, tag string) (*Spec, error) {
	if tag == "" {
		tag = DefaultTag
	}
	r.mu.RLock()
	spec, ok := r.specs[key{appID: appID, tag: tag}]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("app spec", appID+"@"+tag)
	}
	return spec, nil
}

// Len returns the number of registered specs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
