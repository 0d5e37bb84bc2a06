package celox

import (
	"fmt"
	"strings"
)

// Router implements HTTP request routing with support for parameters,
// wildcards, middleware, and groups.
type Router struct {
	trees        map[string]*routeNode
	middlewares  []Middleware
	notFound     Handler
	errorHandler ErrorHandler
}

// ErrorHandler defines a function type for handling errors returned by
// HTTP handlers.
type ErrorHandler func(ctx *Context, err error) error

type routeNode struct {
	handler    Handler
	children   map[string]*routeNode
	paramChild *routeNode
	paramName  string
	wildChild  *routeNode
	wildName   string
}

// NewRouter creates a new Router instance with default not found and error
// handlers.
func NewRouter() *Router {
	return &Router{
		trees: make(map[string]*routeNode),
		notFound: HandlerFunc(func(ctx *Context) error {
			return ctx.String(404, "Not Found")
		}),
		errorHandler: DefaultErrorHandler,
	}
}

// DefaultErrorHandler provides a default implementation for rendering
// error responses.
func DefaultErrorHandler(ctx *Context, err error) error {
	code := 500
	message := "Internal Server Error"
	if httpErr, ok := err.(*HTTPError); ok {
		code = httpErr.Code
		message = httpErr.Message
	}
	if strings.Contains(ctx.Header("accept"), "application/json") {
		return ctx.JSON(code, map[string]any{
			"error": message,
			"code":  code,
		})
	}
	return ctx.String(code, "%s", message)
}

// HTTPError represents an HTTP error with status code, message, and
// optional details.
type HTTPError struct {
	Code    int
	Message string
	Details any
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message}
}

// WithDetails adds additional details to the HTTPError and returns the
// modified error.
func (e *HTTPError) WithDetails(details any) *HTTPError {
	e.Details = details
	return e
}

// Use adds one or more middleware functions to the router's middleware
// stack.
func (r *Router) Use(middlewares ...Middleware) {
	r.middlewares = append(r.middlewares, middlewares...)
}

// NotFound sets the handler called for paths that match no registered
// route.
func (r *Router) NotFound(handler Handler) {
	r.notFound = handler
}

// ErrorHandler sets the error handler function for the router.
func (r *Router) ErrorHandler(handler ErrorHandler) {
	r.errorHandler = handler
}

// GET registers a handler for GET requests.
func (r *Router) GET(path string, handler any) {
	r.Handle("GET", path, handler)
}

// POST registers a handler for POST requests.
func (r *Router) POST(path string, handler any) {
	r.Handle("POST", path, handler)
}

// PUT registers a handler for PUT requests.
func (r *Router) PUT(path string, handler any) {
	r.Handle("PUT", path, handler)
}

// DELETE registers a handler for DELETE requests.
func (r *Router) DELETE(path string, handler any) {
	r.Handle("DELETE", path, handler)
}

// PATCH registers a handler for PATCH requests.
func (r *Router) PATCH(path string, handler any) {
	r.Handle("PATCH", path, handler)
}

// HEAD registers a handler for HEAD requests.
func (r *Router) HEAD(path string, handler any) {
	r.Handle("HEAD", path, handler)
}

// OPTIONS registers a handler for OPTIONS requests.
func (r *Router) OPTIONS(path string, handler any) {
	r.Handle("OPTIONS", path, handler)
}

// Handle registers a handler for the specified HTTP method. The method is
// matched case-insensitively against the lowercased wire method.
func (r *Router) Handle(method, path string, handler any) {
	r.addRoute(strings.ToLower(method), path, r.wrapHandler(handler))
}

func (r *Router) wrapHandler(handler any) Handler {
	switch h := handler.(type) {
	case Handler:
		return h
	case func(*Context) error:
		return HandlerFunc(h)
	default:
		panic(fmt.Sprintf("invalid handler type: %T", handler))
	}
}

func (r *Router) addRoute(method, path string, handler Handler) {
	root := r.trees[method]
	if root == nil {
		root = &routeNode{}
		r.trees[method] = root
	}

	node := root
	for _, segment := range splitPath(path) {
		switch {
		case strings.HasPrefix(segment, ":"):
			if node.paramChild == nil {
				node.paramChild = &routeNode{}
			}
			node.paramName = segment[1:]
			node = node.paramChild
		case strings.HasPrefix(segment, "*"):
			if node.wildChild == nil {
				node.wildChild = &routeNode{}
			}
			node.wildName = segment[1:]
			node = node.wildChild
		default:
			if node.children == nil {
				node.children = make(map[string]*routeNode)
			}
			child := node.children[segment]
			if child == nil {
				child = &routeNode{}
				node.children[segment] = child
			}
			node = child
		}
	}
	node.handler = handler
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// lookup matches method and path against the route trees. The path is the
// raw request path as bytes; parameter values are returned as views into
// it, names in registration order, so the transport layer can install them
// on the zero-copy request view.
func (r *Router) lookup(method string, path []byte) (Handler, []string, [][]byte) {
	root := r.trees[method]
	if root == nil {
		return nil, nil, nil
	}

	var names []string
	var values [][]byte

	node := root
	// Strip the leading '/' and walk segment by segment.
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	for len(path) > 0 {
		seg := path
		rest := []byte(nil)
		for i := 0; i < len(path); i++ {
			if path[i] == '/' {
				seg = path[:i]
				rest = path[i+1:]
				break
			}
		}

		if child, ok := node.children[string(seg)]; ok {
			node = child
		} else if node.paramChild != nil {
			names = append(names, node.paramName)
			values = append(values, seg)
			node = node.paramChild
		} else if node.wildChild != nil {
			names = append(names, node.wildName)
			values = append(values, path)
			node = node.wildChild
			rest = nil
		} else {
			return nil, nil, nil
		}
		path = rest
	}

	if node.handler == nil {
		return nil, nil, nil
	}
	return node.handler, names, values
}

// Dispatch resolves and runs the handler for ctx, applying the router's
// middleware stack and error handler. Unmatched requests go to the
// NotFound handler.
func (r *Router) Dispatch(ctx *Context) error {
	handler, _ := ctx.route.(Handler)
	if handler == nil {
		handler = r.notFound
	}
	if len(r.middlewares) > 0 {
		handler = Chain(r.middlewares...)(handler)
	}
	if err := handler.Serve(ctx); err != nil {
		return r.errorHandler(ctx, err)
	}
	return nil
}

// Group represents a route group with a shared path prefix and middleware.
type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

// Group creates a new route group under prefix.
func (r *Router) Group(prefix string) *Group {
	return &Group{router: r, prefix: strings.TrimSuffix(prefix, "/")}
}

// Use adds middleware that applies to every route registered through the
// group.
func (g *Group) Use(middlewares ...Middleware) {
	g.middlewares = append(g.middlewares, middlewares...)
}

// Handle registers a handler under the group's prefix.
func (g *Group) Handle(method, path string, handler any) {
	h := g.router.wrapHandler(handler)
	if len(g.middlewares) > 0 {
		h = Chain(g.middlewares...)(h)
	}
	g.router.Handle(method, g.prefix+path, h)
}

// GET registers a GET handler under the group's prefix.
func (g *Group) GET(path string, handler any) {
	g.Handle("GET", path, handler)
}

// POST registers a POST handler under the group's prefix.
func (g *Group) POST(path string, handler any) {
	g.Handle("POST", path, handler)
}

// PUT registers a PUT handler under the group's prefix.
func (g *Group) PUT(path string, handler any) {
	g.Handle("PUT", path, handler)
}

// DELETE registers a DELETE handler under the group's prefix.
func (g *Group) DELETE(path string, handler any) {
	g.Handle("DELETE", path, handler)
}
