// Package registry holds the master option registry: the order channels,
// item-option types and row ceiling each restaurant's imports are checked
// against. The registry is read from YAML; built-in defaults are embedded.
package registry

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Options is the registry entry for one restaurant.
type Options struct {
	RowLimit         int                `yaml:"rowLimit"`
	OrderChannels    []catalog.MenuType `yaml:"orderChannels"`
	ItemOptions      []string           `yaml:"itemOptions"`
	ExclusiveOptions [][]string         `yaml:"exclusiveOptions"`
}

// HasOption reports whether name is a configured item-option type.
func (o Options) HasOption(name string) bool {
	return slices.Contains(o.ItemOptions, name)
}

// merge returns o with every field set in override replaced.
func (o Options) merge(override Options) Options {
	if override.RowLimit > 0 {
		o.RowLimit = override.RowLimit
	}
	if override.OrderChannels != nil {
		o.OrderChannels = override.OrderChannels
	}
	if override.ItemOptions != nil {
		o.ItemOptions = override.ItemOptions
	}
	if override.ExclusiveOptions != nil {
		o.ExclusiveOptions = override.ExclusiveOptions
	}
	return o
}

func (o Options) validate(scope string) []string {
	var problems []string
	if o.RowLimit <= 0 {
		problems = append(problems, fmt.Sprintf("%s: rowLimit must be positive", scope))
	}
	if len(o.OrderChannels) == 0 {
		problems = append(problems, fmt.Sprintf("%s: at least one order channel is required", scope))
	}
	for _, set := range o.ExclusiveOptions {
		if len(set) < 2 {
			problems = append(problems, fmt.Sprintf("%s: exclusive option set %v needs two or more options", scope, set))
		}
		for _, name := range set {
			if !o.HasOption(name) {
				problems = append(problems, fmt.Sprintf("%s: exclusive option %q is not an item option", scope, name))
			}
		}
	}
	return problems
}

type file struct {
	Defaults    Options            `yaml:"defaults"`
	Restaurants map[string]Options `yaml:"restaurants"`
}

// Registry serves Options per restaurant. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	data file
}

// Default returns the registry built from the embedded defaults.
func Default() *Registry {
	r, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded registry defaults: %v", err))
	}
	return r
}

// Load reads the registry at path, or returns Default when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes a registry document. Restaurant entries inherit every
// field they leave unset from the defaults.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	problems := f.Defaults.validate("defaults")
	for id, o := range f.Restaurants {
		problems = append(problems, f.Defaults.merge(o).validate("restaurant "+id)...)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid registry: %v", problems)
	}
	return &Registry{data: f}, nil
}

// Options returns the effective options of restaurantID.
func (r *Registry) Options(_ context.Context, restaurantID string) (Options, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o := r.data.Defaults
	if override, ok := r.data.Restaurants[restaurantID]; ok {
		o = o.merge(override)
	}
	return o.clone(), nil
}

// Set replaces the override entry of one restaurant.
func (r *Registry) Set(restaurantID string, o Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if problems := r.data.Defaults.merge(o).validate("restaurant " + restaurantID); len(problems) > 0 {
		return catalog.Errorf(catalog.ErrValidation, "set registry options", "%v", problems)
	}
	if r.data.Restaurants == nil {
		r.data.Restaurants = make(map[string]Options)
	}
	r.data.Restaurants[restaurantID] = o
	return nil
}

func (o Options) clone() Options {
	out := o
	out.OrderChannels = slices.Clone(o.OrderChannels)
	out.ItemOptions = slices.Clone(o.ItemOptions)
	out.ExclusiveOptions = make([][]string, len(o.ExclusiveOptions))
	for i, set := range o.ExclusiveOptions {
		out.ExclusiveOptions[i] = slices.Clone(set)
	}
	return out
}
