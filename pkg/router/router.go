// Package router is a small pattern-matching HTTP mux with :param
// path parameters, used for both the REST API and the WebSocket
// endpoints.
package router

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

type route struct {
	pattern string
	regex   *regexp.Regexp
	params  []string
	handler http.HandlerFunc
}

// Router matches requests by method and path pattern. Patterns may
// contain :name segments, captured as path parameters.
type Router struct {
	routes map[string][]route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Handle registers a handler for the method and pattern. Registration
// order decides precedence between overlapping patterns.
func (r *Router) Handle(method, pattern string, handler http.HandlerFunc) {
	regex, params := compilePattern(pattern)
	method = strings.ToUpper(method)
	r.routes[method] = append(r.routes[method], route{
		pattern: pattern,
		regex:   regex,
		params:  params,
		handler: handler,
	})
}

// GET registers a GET handler.
func (r *Router) GET(pattern string, handler http.HandlerFunc) {
	r.Handle(http.MethodGet, pattern, handler)
}

// POST registers a POST handler.
func (r *Router) POST(pattern string, handler http.HandlerFunc) {
	r.Handle(http.MethodPost, pattern, handler)
}

// Lookup finds the handler and extracted parameters for a request.
func (r *Router) Lookup(method, path string) (http.HandlerFunc, map[string]string, bool) {
	for _, rt := range r.routes[strings.ToUpper(method)] {
		matches := rt.regex.FindStringSubmatch(path)
		if matches == nil {
			continue
		}

		params := make(map[string]string, len(rt.params))
		for i, name := range rt.params {
			if i+1 < len(matches) {
				value := matches[i+1]
				if decoded, err := url.PathUnescape(value); err == nil {
					value = decoded
				}
				params[name] = value
			}
		}
		return rt.handler, params, true
	}
	return nil, nil, false
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler, params, ok := r.Lookup(req.Method, req.URL.Path)
	if !ok {
		http.NotFound(w, req)
		return
	}

	if len(params) > 0 {
		ctx := context.WithValue(req.Context(), paramsKey{}, params)
		req = req.WithContext(ctx)
	}
	handler(w, req)
}

var paramSegment = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

func compilePattern(pattern string) (*regexp.Regexp, []string) {
	var params []string
	expr := paramSegment.ReplaceAllStringFunc(pattern, func(match string) string {
		params = append(params, strings.TrimPrefix(match, ":"))
		return `([^/]+)`
	})
	expr = strings.ReplaceAll(expr, `*`, `(.*)`)
	return regexp.MustCompile("^" + expr + "$"), params
}

type paramsKey struct{}

// Param returns a path parameter captured during routing, empty when
// absent.
func Param(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	m, _ := r.Context().Value(paramsKey{}).(map[string]string)
	return m[name]
}
