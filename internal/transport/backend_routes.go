package transport

import (
	"net/http"

	"github.com/gestri/gestri-bff/internal/openapi"
)

// BackendRoutes lists every backend endpoint the proxy can call. The startup
// spec drift check compares this inventory against the backend's OpenAPI
// document; keep it in sync with the router and the composite workflow.
func BackendRoutes() []openapi.Route {
	var routes []openapi.Route

	crud := func(base string) {
		routes = append(routes,
			openapi.Route{Method: http.MethodGet, Path: base + "/"},
			openapi.Route{Method: http.MethodPost, Path: base + "/"},
			openapi.Route{Method: http.MethodGet, Path: base + "/{id}/"},
			openapi.Route{Method: http.MethodPut, Path: base + "/{id}/"},
			openapi.Route{Method: http.MethodDelete, Path: base + "/{id}/"},
		)
	}
	search := func(base string) {
		routes = append(routes,
			openapi.Route{Method: http.MethodGet, Path: base + "/cerca/{term}/"},
			openapi.Route{Method: http.MethodPost, Path: base + "/filter-by/{term}/"},
		)
	}

	crud("/attivita")
	search("/attivita")
	routes = append(routes,
		openapi.Route{Method: http.MethodGet, Path: "/attivita/by-date/{date}/"},
		openapi.Route{Method: http.MethodPost, Path: "/attivita/{id}/associa-mezzo/"},
		openapi.Route{Method: http.MethodPost, Path: "/attivita/{id}/associa-operatore/"},
		openapi.Route{Method: http.MethodDelete, Path: "/attivita/{id}/dissocia-operatore/{operatore_id}/"},
		openapi.Route{Method: http.MethodGet, Path: "/mezzi-rimorchi/disponibili/"},
		openapi.Route{Method: http.MethodGet, Path: "/operatori/disponibili/"},
	)

	crud("/mezzi")
	search("/mezzi")
	routes = append(routes,
		openapi.Route{Method: http.MethodGet, Path: "/mezzi/by-targa/{targa}/"},
		openapi.Route{Method: http.MethodGet, Path: "/mezzi/by-stato/{stato}/"},
	)

	crud("/rimorchi")
	routes = append(routes,
		openapi.Route{Method: http.MethodPost, Path: "/rimorchi/{id}/upload-image/"},
	)

	crud("/mezzi-rimorchi")
	search("/mezzi-rimorchi")

	crud("/documenti")
	search("/documenti")
	routes = append(routes,
		openapi.Route{Method: http.MethodPatch, Path: "/documenti/{id}/"},
	)

	crud("/utenti")
	search("/utenti")
	routes = append(routes,
		openapi.Route{Method: http.MethodGet, Path: "/assenze/operatore/{id}/"},
	)

	crud("/assenze")

	routes = append(routes,
		openapi.Route{Method: http.MethodGet, Path: "/waitlists/"},
		openapi.Route{Method: http.MethodPost, Path: "/waitlists/"},
		openapi.Route{Method: http.MethodGet, Path: "/profile/"},
		openapi.Route{Method: http.MethodPut, Path: "/profile/"},
		openapi.Route{Method: http.MethodDelete, Path: "/profile/"},
		openapi.Route{Method: http.MethodGet, Path: "/whoami/"},
	)

	return routes
}
