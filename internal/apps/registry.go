// Package apps loads the per-app publishing profiles (tone, audience, quality
// threshold, required sections, image count) used by the pipeline.
package apps

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newsroom/content-pipeline/internal/domain"
)

//go:embed default_apps.yaml
var defaultApps []byte

// file is the on-disk shape of an apps.yaml document.
type file struct {
	DefaultApp string              `yaml:"default_app"`
	Apps       []domain.AppProfile `yaml:"apps"`
}

// Registry resolves app names to profiles. It is immutable after construction.
type Registry struct {
	profiles   map[string]domain.AppProfile
	defaultApp string
}

// Default returns the registry built from the embedded profiles.
func Default() *Registry {
	r, err := Parse(defaultApps)
	if err != nil {
		panic(fmt.Sprintf("apps: embedded profiles are invalid: %v", err))
	}
	return r
}

// Load reads profiles from path. An empty path or a missing file yields the
// embedded defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read app profiles %s: %w", path, err)
	}

	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse app profiles %s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Apps) == 0 {
		return nil, errors.New("no apps defined")
	}

	r := &Registry{
		profiles:   make(map[string]domain.AppProfile, len(f.Apps)),
		defaultApp: normalize(f.DefaultApp),
	}
	for i, p := range f.Apps {
		name := normalize(p.Name)
		if name == "" {
			return nil, fmt.Errorf("app %d: name is required", i)
		}
		if _, dup := r.profiles[name]; dup {
			return nil, fmt.Errorf("app %q defined twice", name)
		}
		if p.PublishThreshold < 0 || p.PublishThreshold > 1 {
			return nil, fmt.Errorf("app %q: publish_threshold must be between 0 and 1", name)
		}
		if p.ContentImageCount < 0 {
			return nil, fmt.Errorf("app %q: content_image_count must not be negative", name)
		}
		p.Name = name
		r.profiles[name] = p
	}

	if r.defaultApp == "" {
		r.defaultApp = normalize(f.Apps[0].Name)
	}
	if _, ok := r.profiles[r.defaultApp]; !ok {
		return nil, fmt.Errorf("default_app %q is not defined", r.defaultApp)
	}
	return r, nil
}

// Lookup returns the profile for app. An empty name resolves to the default app.
func (r *Registry) Lookup(app string) (domain.AppProfile, error) {
	name := normalize(app)
	if name == "" {
		name = r.defaultApp
	}
	p, ok := r.profiles[name]
	if !ok {
		return domain.AppProfile{}, fmt.Errorf("%w: %q", domain.ErrUnknownApp, app)
	}
	p.RequiredSections = append([]string(nil), p.RequiredSections...)
	return p, nil
}

// DefaultApp returns the name used when a request does not name an app.
func (r *Registry) DefaultApp() string {
	return r.defaultApp
}

// Names returns the registered app names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
