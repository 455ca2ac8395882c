// Package graph holds the routing graph between the capture source, the
// processing stages, the sink and the diagnostic monitors.
//
// Nodes are registered once. Edges are either persistent (always connected)
// or belong to the active subgraph, which is replaced wholesale by Swap.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrUnknownNode is returned when an edge names an unregistered node
	ErrUnknownNode = errors.New("graph: unknown node")

	// ErrExclusiveInput is returned when an exclusive-input node would get
	// more than one producer
	ErrExclusiveInput = errors.New("graph: exclusive input already connected")

	// ErrDuplicateNode is returned when a node name is registered twice
	ErrDuplicateNode = errors.New("graph: duplicate node")

	// ErrNoPath is returned by Chain when the nodes are not linked
	ErrNoPath = errors.New("graph: no path")
)

// Kind classifies a node
type Kind int

const (
	KindSource Kind = iota
	KindStage
	KindSink
	KindMonitor
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindStage:
		return "stage"
	case KindSink:
		return "sink"
	case KindMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is a named vertex. An exclusive node accepts at most one producer.
type Node struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"-"`
	Exclusive bool   `json:"exclusive"`
}

// Edge is a directed connection
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e Edge) String() string { return e.From + "->" + e.To }

// Snapshot is a point-in-time copy of the graph
type Snapshot struct {
	Active     string `json:"active"`
	Persistent []Edge `json:"persistent"`
	Edges      []Edge `json:"edges"`
}

// Topology is safe for concurrent use
type Topology struct {
	logger *slog.Logger

	mu         sync.RWMutex
	nodes      map[string]Node
	order      []string
	persistent []Edge
	active     string
	edges      []Edge
}

// New creates an empty topology
func New(logger *slog.Logger) *Topology {
	if logger == nil {
		logger = slog.Default()
	}
	return &Topology{
		logger: logger,
		nodes:  make(map[string]Node),
	}
}

// AddNode registers a node
func (t *Topology) AddNode(name string, kind Kind, exclusive bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	t.nodes[name] = Node{Name: name, Kind: kind, Exclusive: exclusive}
	t.order = append(t.order, name)
	return nil
}

// Node looks up a registered node
func (t *Topology) Node(name string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[name]
	return n, ok
}

// Nodes returns the registered nodes in registration order
func (t *Topology) Nodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Node, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.nodes[name])
	}
	return out
}

// Connect adds a persistent edge that survives every Swap
func (t *Topology) Connect(from, to string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Edge{From: from, To: to}
	combined := append(append([]Edge(nil), t.persistent...), t.edges...)
	combined = append(combined, e)
	if err := t.validate(combined); err != nil {
		return err
	}
	t.persistent = append(t.persistent, e)
	return nil
}

// Swap replaces the active subgraph with edges in one step. On error the
// previous subgraph stays connected.
func (t *Topology) Swap(name string, edges []Edge) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	combined := append(append([]Edge(nil), t.persistent...), edges...)
	if err := t.validate(combined); err != nil {
		return fmt.Errorf("swap to %s: %w", name, err)
	}

	prev := t.active
	t.active = name
	t.edges = append([]Edge(nil), edges...)

	t.logger.Debug("topology swapped", "from", prev, "to", name, "edges", len(edges))
	return nil
}

// validate must be called with mu held
func (t *Topology) validate(edges []Edge) error {
	producers := make(map[string]string, len(edges))
	seen := make(map[Edge]bool, len(edges))

	for _, e := range edges {
		if _, ok := t.nodes[e.From]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, e.From)
		}
		to, ok := t.nodes[e.To]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, e.To)
		}
		if e.From == e.To {
			return fmt.Errorf("graph: self loop on %s", e.From)
		}
		if seen[e] {
			continue
		}
		seen[e] = true

		if !to.Exclusive {
			continue
		}
		if prev, ok := producers[e.To]; ok {
			return fmt.Errorf("%w: %s fed by %s and %s", ErrExclusiveInput, e.To, prev, e.From)
		}
		producers[e.To] = e.From
	}
	return nil
}

// Active returns the name of the active subgraph
func (t *Topology) Active() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Edges returns persistent and active edges
func (t *Topology) Edges() []Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Edge, 0, len(t.persistent)+len(t.edges))
	out = append(out, t.persistent...)
	return append(out, t.edges...)
}

// Connected reports whether from feeds to directly
func (t *Topology) Connected(from, to string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.persistent {
		if e.From == from && e.To == to {
			return true
		}
	}
	for _, e := range t.edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// Producers returns every node feeding to
func (t *Topology) Producers(to string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for _, e := range t.persistent {
		if e.To == to {
			out = append(out, e.From)
		}
	}
	for _, e := range t.edges {
		if e.To == to {
			out = append(out, e.From)
		}
	}
	return out
}

// Chain walks the active subgraph from one node to another, returning every
// node on the way including both ends. Edges into monitors are not followed.
func (t *Topology) Chain(from, to string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[from]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if _, ok := t.nodes[to]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}

	path := []string{from}
	visited := map[string]bool{from: true}
	cur := from
	for cur != to {
		next := ""
		for _, e := range t.edges {
			if e.From != cur || t.nodes[e.To].Kind == KindMonitor {
				continue
			}
			next = e.To
			break
		}
		if next == "" || visited[next] {
			return nil, fmt.Errorf("%w: %s to %s", ErrNoPath, from, to)
		}
		visited[next] = true
		path = append(path, next)
		cur = next
	}
	return path, nil
}

// Snapshot copies the current state
func (t *Topology) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Snapshot{
		Active:     t.active,
		Persistent: append([]Edge{}, t.persistent...),
		Edges:      append([]Edge{}, t.edges...),
	}
}
