package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Params is the bag of caller-supplied overrides. String fields arrive raw
// from HTML forms; empty means absent. Numeric fields are sniffed by
// Coerce before they reach the graph.
type Params struct {
	Prompt         string
	NegativePrompt string

	Seed        string
	Steps       string
	CFG         string
	SamplerName string
	Scheduler   string
	Denoise     string

	Width  string
	Height string

	// Images maps role → saved file path.
	Images map[string]string

	Checkpoint string
	VAE        string
}

// InvalidParamError reports a caller-supplied value that could not be
// applied to the template. Optional parameters that are absent are
// silently skipped; present ones that fail to bind are not.
type InvalidParamError struct {
	Param  string
	Reason string
}

func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

// Coerce reproduces the form-string sniffing rule: a value containing '.'
// becomes a float, otherwise an int; non-numeric strings pass through
// unchanged.
func Coerce(s string) any {
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	} else if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// Patch returns a deep copy of tpl with every present parameter written
// into the fields the binding table designates. tpl itself is never
// mutated. Structural shape (node ids, references) is never altered, only
// leaf scalar values change.
func Patch(tpl Graph, b Binding, p Params) (Graph, error) {
	g := tpl.Clone()

	if p.Prompt != "" {
		if err := setText(g, b.Prompt, "prompt", p.Prompt); err != nil {
			return nil, err
		}
	}
	if p.NegativePrompt != "" {
		if err := setText(g, b.NegativePrompt, "negative_prompt", p.NegativePrompt); err != nil {
			return nil, err
		}
	}

	sampler := map[string]string{
		"seed":    p.Seed,
		"steps":   p.Steps,
		"cfg":     p.CFG,
		"denoise": p.Denoise,
	}
	for field, raw := range sampler {
		if raw == "" {
			continue
		}
		if err := setInput(g, b.SamplerNode, field, Coerce(raw), field); err != nil {
			return nil, err
		}
	}
	if p.SamplerName != "" {
		if err := setInput(g, b.SamplerNode, "sampler_name", p.SamplerName, "sampler_name"); err != nil {
			return nil, err
		}
	}
	if p.Scheduler != "" {
		if err := setInput(g, b.SamplerNode, "scheduler", p.Scheduler, "scheduler"); err != nil {
			return nil, err
		}
	}

	if p.Width != "" {
		if err := setInput(g, b.SizeNode, "width", Coerce(p.Width), "width"); err != nil {
			return nil, err
		}
	}
	if p.Height != "" {
		if err := setInput(g, b.SizeNode, "height", Coerce(p.Height), "height"); err != nil {
			return nil, err
		}
	}

	for role, path := range p.Images {
		ref, ok := b.Images[role]
		if !ok {
			return nil, &InvalidParamError{Param: role, Reason: "template accepts no image for this role"}
		}
		if err := setInput(g, ref.Node, ref.Field, path, role); err != nil {
			return nil, err
		}
	}

	if p.Checkpoint != "" {
		if err := setInput(g, b.CheckpointNode, "ckpt_name", p.Checkpoint, "checkpoint"); err != nil {
			return nil, err
		}
	}
	if p.VAE != "" {
		if err := setInput(g, b.VAENode, "vae_name", p.VAE, "vae"); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func setText(g Graph, ref *FieldRef, param, value string) error {
	if ref == nil {
		return &InvalidParamError{Param: param, Reason: "template binds no such role"}
	}
	return setInput(g, ref.Node, ref.Field, value, param)
}

func setInput(g Graph, nodeID, field string, value any, param string) error {
	if nodeID == "" {
		return &InvalidParamError{Param: param, Reason: "template binds no such role"}
	}
	node, ok := g[nodeID]
	if !ok {
		return &InvalidParamError{Param: param, Reason: fmt.Sprintf("bound node %q missing from template", nodeID)}
	}
	if node.Inputs == nil {
		return &InvalidParamError{Param: param, Reason: fmt.Sprintf("bound node %q has no inputs", nodeID)}
	}
	node.Inputs[field] = value
	return nil
}
