// package views maps each campaign service to its named record-store views.
//
// The registry is built once at start-up from configuration and only read afterwards.
// Asking for a service with no configured views yields an empty map, never an error.
package views

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/desertthunder/opsync/internal/shared"
)

// ServiceTag identifies a campaign service.
type ServiceTag string

const (
	Spotify    ServiceTag = "spotify"
	Instagram  ServiceTag = "instagram"
	SoundCloud ServiceTag = "soundcloud"
)

// Tags returns every known service tag in display order.
func Tags() []ServiceTag {
	return []ServiceTag{Spotify, Instagram, SoundCloud}
}

// Valid reports whether t is one of [Tags].
func (t ServiceTag) Valid() bool {
	return slices.Contains(Tags(), t)
}

func (t ServiceTag) String() string { return string(t) }

// ParseServiceTag accepts a tag in any case.
func ParseServiceTag(s string) (ServiceTag, error) {
	t := ServiceTag(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q (want one of %v)", shared.ErrUnknownService, s, Tags())
	}
	return t, nil
}

// View is one named view of a service.
type View struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Registry holds the view mapping of every configured service.
type Registry struct {
	views map[ServiceTag]map[string]string
}

// NewRegistry copies m into a new Registry.
func NewRegistry(m map[ServiceTag]map[string]string) *Registry {
	r := &Registry{views: make(map[ServiceTag]map[string]string, len(m))}
	for tag, named := range m {
		r.views[tag] = maps.Clone(named)
	}
	return r
}

// FromConfig builds a Registry from the `[views.<tag>]` tables of the config file.
// Unknown tags and blank view ids are rejected.
func FromConfig(cfg map[string]map[string]string) (*Registry, error) {
	m := make(map[ServiceTag]map[string]string, len(cfg))
	for raw, named := range cfg {
		tag, err := ParseServiceTag(raw)
		if err != nil {
			return nil, err
		}
		for name, id := range named {
			if strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("%w: view %q of %s has no id", shared.ErrInvalidConfig, name, tag)
			}
		}
		m[tag] = named
	}
	return NewRegistry(m), nil
}

// DefaultRegistry returns the views shipped in the example configuration.
func DefaultRegistry() *Registry {
	r, err := FromConfig(shared.DefaultConfig().Views)
	if err != nil {
		panic(fmt.Sprintf("invalid default views: %v", err))
	}
	return r
}

// ViewsFor returns a copy of the view name to id mapping for tag.
// Unknown tags give an empty, non-nil map.
func (r *Registry) ViewsFor(tag ServiceTag) map[string]string {
	named, ok := r.views[tag]
	if !ok {
		return map[string]string{}
	}
	return maps.Clone(named)
}

// List returns the views of tag sorted by name.
func (r *Registry) List(tag ServiceTag) []View {
	named := r.views[tag]
	out := make([]View, 0, len(named))
	for _, name := range slices.Sorted(maps.Keys(named)) {
		out = append(out, View{Name: name, ID: named[name]})
	}
	return out
}

// Lookup resolves a view by name, or by id when name is already one.
func (r *Registry) Lookup(tag ServiceTag, name string) (View, error) {
	named := r.views[tag]
	if id, ok := named[name]; ok {
		return View{Name: name, ID: id}, nil
	}
	for n, id := range named {
		if id == name {
			return View{Name: n, ID: id}, nil
		}
	}
	return View{}, fmt.Errorf("%w: %q for %s", shared.ErrUnknownView, name, tag)
}

// Configured returns the tags that have at least one view.
func (r *Registry) Configured() []ServiceTag {
	var out []ServiceTag
	for _, t := range Tags() {
		if len(r.views[t]) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// URL builds the browser address of a view.
func URL(webBase, baseID, table, viewID string) string {
	return fmt.Sprintf("%s/%s/%s/%s",
		strings.TrimRight(webBase, "/"),
		url.PathEscape(baseID),
		url.PathEscape(table),
		url.PathEscape(viewID),
	)
}
