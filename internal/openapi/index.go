// Package openapi loads an optional OpenAPI document describing the Django
// backend and checks the proxy's outbound routes against it at startup. A
// route missing from the document is a drift warning, never a startup
// failure: the backend document lags behind reality often enough that
// refusing to boot would hurt more than it helps.
package openapi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Route is one backend endpoint the proxy calls, as method plus path
// template. Placeholder segments use the {name} form.
type Route struct {
	Method string
	Path   string
}

func (r Route) String() string {
	return r.Method + " " + r.Path
}

// Index holds the paths declared by the backend's OpenAPI document.
type Index struct {
	// methods per normalized path template
	paths map[string]map[string]bool
}

// Load parses and validates the document at specPath and indexes its paths.
// Path templates are normalized: the /api prefix and trailing slashes are
// stripped so documents written either way compare equal.
func Load(specPath string) (*Index, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("openapi: validating %s: %w", specPath, err)
	}

	idx := &Index{paths: make(map[string]map[string]bool)}
	for path, pathItem := range doc.Paths.Map() {
		key := normalizePath(path)
		if idx.paths[key] == nil {
			idx.paths[key] = make(map[string]bool)
		}
		for method := range pathItem.Operations() {
			idx.paths[key][strings.ToUpper(method)] = true
		}
	}
	return idx, nil
}

// Covers reports whether the document declares an operation matching the
// given route. Placeholder segments on either side match any segment.
func (idx *Index) Covers(method, path string) bool {
	method = strings.ToUpper(method)
	want := splitPath(normalizePath(path))

	for tmpl, methods := range idx.paths {
		if !methods[method] {
			continue
		}
		if segmentsMatch(splitPath(tmpl), want) {
			return true
		}
	}
	return false
}

// Missing returns the routes the document does not cover, sorted for stable
// log output.
func (idx *Index) Missing(routes []Route) []Route {
	var missing []Route
	for _, r := range routes {
		if !idx.Covers(r.Method, r.Path) {
			missing = append(missing, r)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return missing[i].String() < missing[j].String()
	})
	return missing
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/api")
	p = strings.Trim(p, "/")
	return p
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func segmentsMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if isPlaceholder(a[i]) || isPlaceholder(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isPlaceholder(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}
