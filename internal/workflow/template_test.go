package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validTemplate = `{
  "1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "a.safetensors"}},
  "2": {"class_type": "CLIPTextEncode", "inputs": {"text": "hi", "clip": ["1", 1]}}
}`

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "basic", validTemplate)

	s := NewStore(dir)
	g, err := s.Load("basic")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(g) != 2 {
		t.Fatalf("got %d nodes, want 2", len(g))
	}
	if g["1"].ClassType != "CheckpointLoaderSimple" {
		t.Errorf("class_type = %q", g["1"].ClassType)
	}
}

func TestStoreCachesForever(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "basic", validTemplate)

	s := NewStore(dir)
	if _, err := s.Load("basic"); err != nil {
		t.Fatal(err)
	}

	// Corrupting the file on disk must not affect subsequent loads.
	writeTemplate(t, dir, "basic", "{broken")
	g, err := s.Load("basic")
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if len(g) != 2 {
		t.Fatalf("cache returned %d nodes", len(g))
	}
}

func TestStoreNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("nope")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("err = %v, want ErrTemplateNotFound", err)
	}
}

func TestStoreRejectsPathSeparators(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, name := range []string{"../etc/passwd", "a/b", `a\b`} {
		if _, err := s.Load(name); !errors.Is(err, ErrTemplateNotFound) {
			t.Errorf("Load(%q) err = %v, want ErrTemplateNotFound", name, err)
		}
	}
}

func TestStoreMalformed(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"badjson":  `{not json`,
		"empty":    `{}`,
		"noclass":  `{"1": {"inputs": {"x": 1}}}`,
		"danglref": `{"1": {"class_type": "A", "inputs": {"in": ["9", 0]}}}`,
	}
	for name, content := range cases {
		writeTemplate(t, dir, name, content)
	}

	s := NewStore(dir)
	for name := range cases {
		_, err := s.Load(name)
		var te *TemplateError
		if !errors.As(err, &te) {
			t.Errorf("Load(%q) err = %v, want TemplateError", name, err)
		}
	}
}

func TestGraphCloneIsDeep(t *testing.T) {
	g := Graph{
		"1": {ClassType: "A", Inputs: map[string]any{"x": float64(1)}},
	}
	c := g.Clone()
	c["1"].Inputs["x"] = float64(2)
	if g["1"].Inputs["x"] != float64(1) {
		t.Fatalf("clone shares input map with original")
	}
}
