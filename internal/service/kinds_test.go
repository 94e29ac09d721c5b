package service

import (
	"testing"

	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/workflow"
)

// TestKindSpecsMatchShippedTemplates patches every registered kind
// against its shipped template with every bindable parameter set, so a
// drifted node id fails here instead of at the engine.
func TestKindSpecsMatchShippedTemplates(t *testing.T) {
	store := workflow.NewStore("../../templates")

	for kind, spec := range kindSpecs {
		t.Run(string(kind), func(t *testing.T) {
			tpl, err := store.Load(spec.Template)
			if err != nil {
				t.Fatalf("load template %q: %v", spec.Template, err)
			}

			b := spec.Binding
			params := workflow.Params{
				Seed:  "42",
				Steps: "25",
				CFG:   "6.5",
			}
			if b.Prompt != nil {
				params.Prompt = "binding check"
			}
			if b.NegativePrompt != nil {
				params.NegativePrompt = "binding check"
			}
			if b.SizeNode != "" {
				params.Width = "768"
				params.Height = "768"
			}
			if b.CheckpointNode != "" {
				params.Checkpoint = "check.safetensors"
			}
			if b.VAENode != "" {
				params.VAE = "check.vae"
			}
			if len(b.Images) > 0 {
				params.Images = map[string]string{}
				for role := range b.Images {
					params.Images[role] = "/uploads/" + role + ".png"
				}
			}

			g, err := workflow.Patch(tpl, b, params)
			if err != nil {
				t.Fatalf("patch: %v", err)
			}
			if g[b.SamplerNode].Inputs["seed"] != 42 {
				t.Errorf("seed not applied to sampler node %q", b.SamplerNode)
			}
			for role, ref := range b.Images {
				if g[ref.Node].Inputs[ref.Field] != "/uploads/"+role+".png" {
					t.Errorf("role %q not applied to node %q field %q", role, ref.Node, ref.Field)
				}
			}
		})
	}
}

func TestSpecForRequiredRoles(t *testing.T) {
	cases := map[string][]string{
		"text2image":  nil,
		"img2img":     {workflow.RoleImage},
		"inpaint":     {workflow.RoleImage, workflow.RoleMask},
		"garmentswap": {workflow.RolePerson, workflow.RoleGarment},
		"img2vid":     {workflow.RoleImage},
	}
	for kind, roles := range cases {
		k, ok := model.ParseKind(kind)
		if !ok {
			t.Fatalf("ParseKind(%q) failed", kind)
		}
		spec, ok := SpecFor(k)
		if !ok {
			t.Fatalf("no spec for %q", kind)
		}
		if len(spec.ImageRoles) != len(roles) {
			t.Errorf("%s roles = %v, want %v", kind, spec.ImageRoles, roles)
			continue
		}
		for i, role := range roles {
			if spec.ImageRoles[i] != role {
				t.Errorf("%s roles = %v, want %v", kind, spec.ImageRoles, roles)
			}
		}
	}
}
