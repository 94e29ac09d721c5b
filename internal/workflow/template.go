package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ─────────────────────────────────────────────
// Workflow Graph
//
// A template is a node-id → node mapping, the engine's own wire shape.
// Node inputs hold either leaf scalars or [node_id, output_index]
// references to another node's output.
// ─────────────────────────────────────────────

// Node is one operation in the computation graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Graph is the full template / patched job document.
type Graph map[string]Node

// Clone returns a deep copy via a JSON round trip, so patching never
// touches the cached template.
func (g Graph) Clone() Graph {
	raw, err := json.Marshal(g)
	if err != nil {
		// A loaded graph is always marshalable; this only fires on
		// programmer error.
		panic(fmt.Sprintf("workflow: clone marshal: %v", err))
	}
	var out Graph
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("workflow: clone unmarshal: %v", err))
	}
	return out
}

// ─────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────

// ErrTemplateNotFound reports a missing template document.
var ErrTemplateNotFound = errors.New("workflow template not found")

// TemplateError reports a template that does not parse into the expected
// node-mapping shape.
type TemplateError struct {
	Name   string
	Reason string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("workflow template %q malformed: %s", e.Name, e.Reason)
}

// ─────────────────────────────────────────────
// Template Store
// ─────────────────────────────────────────────

// Store loads named workflow templates from a directory and caches them.
// Templates are immutable between deploys, so cache entries never expire.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]Graph
}

// NewStore creates a template store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: make(map[string]Graph),
	}
}

// Load returns the named template. The returned graph is shared; callers
// must Clone before mutating (Patch does).
func (s *Store) Load(name string) (Graph, error) {
	s.mu.RLock()
	g, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}

	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("read workflow template %q: %w", name, err)
	}

	g, err = parseGraph(name, raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = g
	s.mu.Unlock()
	return g, nil
}

func parseGraph(name string, raw []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, &TemplateError{Name: name, Reason: err.Error()}
	}
	if len(g) == 0 {
		return nil, &TemplateError{Name: name, Reason: "empty graph"}
	}
	for id, node := range g {
		if node.ClassType == "" {
			return nil, &TemplateError{Name: name, Reason: fmt.Sprintf("node %q has no class_type", id)}
		}
		for field, v := range node.Inputs {
			ref, ok := asNodeRef(v)
			if !ok {
				continue
			}
			if _, exists := g[ref]; !exists {
				return nil, &TemplateError{
					Name:   name,
					Reason: fmt.Sprintf("node %q input %q references missing node %q", id, field, ref),
				}
			}
		}
	}
	return g, nil
}

// asNodeRef reports whether v has the [node_id, output_index] reference
// shape and returns the referenced node id.
func asNodeRef(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return "", false
	}
	id, ok := arr[0].(string)
	if !ok {
		return "", false
	}
	if _, ok := arr[1].(float64); !ok {
		return "", false
	}
	return id, true
}
