package routing

import (
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// allowlistVersion is the only schema revision this build understands; an
// unknown version is rejected rather than half-read.
const allowlistVersion = 1

// Allowlist is the declarative route inventory: every path an entrypoint
// serves, its methods, and the route class that drives error envelopes and
// access checks.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, fmt.Errorf("allowlist: %w", err)
	}
	if err := a.validate(); err != nil {
		return Allowlist{}, err
	}
	return a, nil
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	return ParseAllowlistYAML(b)
}

func (a Allowlist) validate() error {
	if a.Version != allowlistVersion {
		return fmt.Errorf("allowlist: version %d not supported", a.Version)
	}
	if len(a.Entrypoints) == 0 {
		return fmt.Errorf("allowlist: no entrypoints declared")
	}
	for name, ep := range a.Entrypoints {
		for _, r := range ep.Routes {
			if err := r.validate(); err != nil {
				return fmt.Errorf("allowlist: entrypoint %s: %w", name, err)
			}
		}
	}
	return nil
}

func (r Route) validate() error {
	if r.Path == "" || r.Path[0] != '/' {
		return fmt.Errorf("route path %q must start with /", r.Path)
	}
	if len(r.Methods) == 0 {
		return fmt.Errorf("route %s declares no methods", r.Path)
	}
	for _, m := range r.Methods {
		if !allowedMethods[m] {
			return fmt.Errorf("route %s: unknown method %q", r.Path, m)
		}
	}
	if !allowedRouteClasses[RouteClass(r.RouteClass)] {
		return fmt.Errorf("route %s: unknown route class %q", r.Path, r.RouteClass)
	}
	return nil
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

var allowedRouteClasses = map[RouteClass]bool{
	RouteClassInternalAPI: true,
	RouteClassPublicAPI:   true,
	RouteClassWebhook:     true,
	RouteClassAuthn:       true,
	RouteClassOps:         true,
	RouteClassDevOnly:     true,
}
