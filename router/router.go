// Package router provides the key tree used to index topics in pushserver.
//
// A topic address is broken into a Namespace (topic name, then subtopic) and
// each Node of the tree holds at most one value. Intermediate nodes may exist
// without a value, e.g. a topic name for which only subtopics were created.
//
// The tree is not safe for concurrent use; callers guard it with their own lock.
package router

import (
	"strings"
)

// Namespace is a path of keys from the root of the tree.
type Namespace []string

func (ns Namespace) String() string {
	return "/" + strings.Join(ns, "/")
}

// A Node holds 0..1 values and any number of children.
type Node[V any] struct {
	parent   *Node[V]
	children map[string]*Node[V]
	key      string
	value    V
	hasValue bool
}

// New returns a new root Node (without a parent).
func New[V any]() *Node[V] {
	return newNode[V](nil, "")
}

func newNode[V any](parent *Node[V], key string) *Node[V] {
	return &Node[V]{
		key:      key,
		parent:   parent,
		children: make(map[string]*Node[V]),
	}
}

// Key returns the last element of the node's namespace.
func (n *Node[V]) Key() string {
	return n.key
}

// Find returns the child Node at relative namespace ns, or nil if it does not
// exist.
func (n *Node[V]) Find(ns Namespace) *Node[V] {
	for _, target := range ns {
		c, ok := n.children[target]
		if !ok {
			return nil
		}
		n = c
	}
	return n
}

// FindOrCreate returns the child Node at relative namespace ns, creating it and
// any missing ancestors.
func (n *Node[V]) FindOrCreate(ns Namespace) *Node[V] {
	for _, target := range ns {
		c, ok := n.children[target]
		if !ok {
			c = newNode(n, target)
			n.children[target] = c
		}
		n = c
	}
	return n
}

/****************************************************************************
  Dealing with values
****************************************************************************/

// Value returns the value stored at the node, if any.
func (n *Node[V]) Value() (V, bool) {
	return n.value, n.hasValue
}

// Set stores v at the node, replacing any previous value.
func (n *Node[V]) Set(v V) {
	n.value = v
	n.hasValue = true
}

// Clear removes the node's value and prunes the node, and any ancestors, left
// without values or children. It reports whether a value was present.
func (n *Node[V]) Clear() bool {
	had := n.hasValue
	var zero V
	n.value = zero
	n.hasValue = false
	n.prune()
	return had
}

// Lookup returns the value stored at relative namespace ns.
func (n *Node[V]) Lookup(ns Namespace) (V, bool) {
	if dst := n.Find(ns); dst != nil {
		return dst.Value()
	}
	var zero V
	return zero, false
}

// SetAt stores v at relative namespace ns, creating nodes as needed.
//
// Returns the *Node where the value was stored.
func (n *Node[V]) SetAt(ns Namespace, v V) *Node[V] {
	dst := n.FindOrCreate(ns)
	dst.Set(v)
	return dst
}

func (n *Node[V]) prune() {
	for n.parent != nil && !n.hasValue && len(n.children) == 0 {
		delete(n.parent.children, n.key)
		n = n.parent
	}
}

/****************************************************************************
  Graph traversal and relationships
****************************************************************************/

// TraverseDown visits the node & each descendent node, applying traverseFn.
func (n *Node[V]) TraverseDown(traverseFn func(*Node[V])) {
	traverseFn(n)
	for _, c := range n.children {
		c.TraverseDown(traverseFn)
	}
}

// TraverseUp visits the node and each ancestor node, applying traverseFn.
func (n *Node[V]) TraverseUp(traverseFn func(*Node[V])) {
	for ; n != nil; n = n.parent {
		traverseFn(n)
	}
}

// Children returns the direct children of a Node only.
func (n *Node[V]) Children() []*Node[V] {
	childs := make([]*Node[V], 0, len(n.children))
	for _, c := range n.children {
		childs = append(childs, c)
	}
	return childs
}

// Values returns every value stored at or below the node.
func (n *Node[V]) Values() []V {
	var vs []V
	n.TraverseDown(func(d *Node[V]) {
		if d.hasValue {
			vs = append(vs, d.value)
		}
	})
	return vs
}

// Namespace returns the fully-qualified namespace for a Node by walking up the
// tree.
func (n *Node[V]) Namespace() Namespace {
	var keys Namespace
	n.TraverseUp(func(a *Node[V]) {
		if a.parent != nil {
			keys = append(Namespace{a.key}, keys...)
		}
	})
	return keys
}
