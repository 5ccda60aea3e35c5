package fallback

import (
	"github.com/kowito/chopin-sub000/core/httpx"
)

// HandlerFunc is the signature for fallback route handlers.
type HandlerFunc func(*httpx.Context)

// radixTree is a radix-tree route store with :param and *catchall support.
// It backs the dynamic tier of the fallback router; the fast tier never
// consults it.
type radixTree struct {
	root *node
}

type nodeType uint8

const (
	static   nodeType = iota // default
	param                    // :param
	catchAll                 // *param
)

type node struct {
	path      string
	indices   string
	children  []*node
	handlers  map[string]HandlerFunc // method -> handler
	priority  uint32
	nType     nodeType
	paramName string // parameter name for :param or *param nodes
}

func newRadixTree() *radixTree {
	return &radixTree{
		root: &node{
			handlers: make(map[string]HandlerFunc),
		},
	}
}

// add registers a route
func (t *radixTree) add(method, path string, handler HandlerFunc) {
	if path == "" || path[0] != '/' {
		panic("fallback: path must begin with '/'")
	}
	t.root.addRoute(method, path, handler)
}

// find locates the handler for (method, path). pathMatched reports whether
// the path exists at all, so the router can distinguish 405 from 404.
func (t *radixTree) find(method, path string, ctx *httpx.Context) (h HandlerFunc, pathMatched bool) {
	if t.root == nil {
		return nil, false
	}
	return t.root.getValue(method, path, ctx)
}

func (n *node) addRoute(method, path string, handler HandlerFunc) {
	// Empty tree
	if n.path == "" && len(n.children) == 0 {
		n.insertChild(method, path, handler)
		n.nType = static
		return
	}

	for {
		// Find the longest common prefix
		i := longestCommonPrefix(path, n.path)

		// Split edge
		if i < len(n.path) {
			child := &node{
				path:      n.path[i:],
				indices:   n.indices,
				children:  n.children,
				handlers:  n.handlers,
				priority:  n.priority - 1,
				nType:     n.nType,
				paramName: n.paramName,
			}

			n.children = []*node{child}
			n.indices = string([]byte{n.path[i]})
			n.path = path[:i]
			n.handlers = make(map[string]HandlerFunc)
			n.nType = static
			n.paramName = ""
		}

		// Make the new route a child of this node
		if i < len(path) {
			path = path[i:]

			if n.nType == param {
				n.priority++
				continue
			}

			idxc := path[0]

			// Check if a child with the next path byte exists
			childFound := false
			for ci, c := range []byte(n.indices) {
				if c == idxc {
					n.priority++
					n = n.children[ci]
					childFound = true
					break
				}
			}
			if childFound {
				continue
			}

			if idxc != ':' && idxc != '*' {
				n.indices += string([]byte{idxc})
				child := &node{}
				n.addChild(child)
				n = child
			}
			n.insertChild(method, path, handler)
			return
		}

		// Route ends at this node: attach the handler here
		if n.handlers == nil {
			n.handlers = make(map[string]HandlerFunc)
		}
		if n.handlers[method] != nil {
			panic("fallback: duplicate route " + method + " on node " + n.path)
		}
		n.handlers[method] = handler
		return
	}
}

func (n *node) insertChild(method, path string, handler HandlerFunc) {
	for {
		wildcard, i, valid := findWildcard(path)
		if i < 0 { // No wildcard found
			break
		}

		if !valid {
			panic("fallback: only one wildcard per path segment is allowed")
		}
		if len(wildcard) < 2 {
			panic("fallback: wildcards must be named")
		}

		// :param
		if wildcard[0] == ':' {
			if i > 0 {
				n.path = path[:i]
				path = path[i:]
			}

			child := &node{
				nType:     param,
				path:      wildcard,
				paramName: wildcard[1:],
			}
			n.addChild(child)
			n = child
			n.priority++

			// More path after the param segment
			if len(wildcard) < len(path) {
				path = path[len(wildcard):]
				child := &node{
					priority: 1,
				}
				n.addChild(child)
				n = child
				continue
			}

			if n.handlers == nil {
				n.handlers = make(map[string]HandlerFunc)
			}
			n.handlers[method] = handler
			return
		}

		// *catchall
		if i+len(wildcard) != len(path) {
			panic("fallback: catch-all routes are only allowed at the end of the path")
		}

		if i == 0 || path[i-1] != '/' {
			panic("fallback: catch-all must follow a '/'")
		}

		n.path = path[:i]
		child := &node{
			nType:     catchAll,
			path:      wildcard,
			paramName: wildcard[1:],
			handlers:  map[string]HandlerFunc{method: handler},
			priority:  1,
		}
		n.addChild(child)
		return
	}

	// Plain literal remainder
	n.path = path
	if n.handlers == nil {
		n.handlers = make(map[string]HandlerFunc)
	}
	n.handlers[method] = handler
}

func (n *node) addChild(child *node) {
	n.children = append(n.children, child)
}

// getValue walks the tree for path, filling params into ctx as it descends.
func (n *node) getValue(method, path string, ctx *httpx.Context) (HandlerFunc, bool) {
	for {
		prefix := n.path

		if len(path) > len(prefix) {
			if path[:len(prefix)] == prefix {
				path = path[len(prefix):]

				// Try all the non-wildcard children
				idxc := path[0]
				childFound := false
				for i, c := range []byte(n.indices) {
					if c == idxc {
						n = n.children[i]
						childFound = true
						break
					}
				}
				if childFound {
					continue
				}

				// Check for wildcard children
				if len(n.children) > 0 {
					lastChild := n.children[len(n.children)-1]

					if lastChild.nType != static {
						n = lastChild

						switch n.nType {
						case param:
							end := 0
							for end < len(path) && path[end] != '/' {
								end++
							}

							if ctx != nil {
								ctx.SetParam(n.paramName, path[:end])
							}

							if end < len(path) {
								if len(n.children) > 0 {
									path = path[end:]
									n = n.children[0]
									continue
								}
								return nil, false
							}

							return n.handlers[method], len(n.handlers) > 0

						case catchAll:
							if ctx != nil {
								ctx.SetParam(n.paramName, path)
							}
							return n.handlers[method], len(n.handlers) > 0
						}
					}
				}

				return nil, false
			}
		}

		if path != prefix {
			return nil, false
		}

		// Reached the node owning this exact path
		return n.handlers[method], len(n.handlers) > 0
	}
}

// findWildcard locates the first wildcard segment and validates it.
func findWildcard(path string) (wildcard string, i int, valid bool) {
	for start, c := range []byte(path) {
		if c != ':' && c != '*' {
			continue
		}

		valid = true
		for end, c := range []byte(path[start+1:]) {
			switch c {
			case '/':
				return path[start : start+1+end], start, valid
			case ':', '*':
				valid = false
			}
		}
		return path[start:], start, valid
	}
	return "", -1, false
}

func longestCommonPrefix(a, b string) int {
	i := 0
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for i < max && a[i] == b[i] {
		i++
	}
	return i
}
