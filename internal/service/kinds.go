package service

import (
	"github.com/genstudio/server/internal/model"
	"github.com/genstudio/server/internal/workflow"
)

// KindSpec is everything that differs between request kinds: the template
// to load, the role binding table, and which upload roles are required.
// Orchestration itself is one code path.
type KindSpec struct {
	Template   string
	Binding    workflow.Binding
	ImageRoles []string // required upload roles, in form-field order
}

var kindSpecs = map[model.Kind]KindSpec{
	model.KindText2Image: {
		Template: "text2image",
		Binding: workflow.Binding{
			Prompt:         &workflow.FieldRef{Node: "2", Field: "text"},
			NegativePrompt: &workflow.FieldRef{Node: "3", Field: "text"},
			SamplerNode:    "4",
			SizeNode:       "15",
			CheckpointNode: "1",
			VAENode:        "10",
		},
	},
	model.KindImg2Img: {
		Template: "img2img",
		Binding: workflow.Binding{
			Prompt:         &workflow.FieldRef{Node: "2", Field: "text"},
			NegativePrompt: &workflow.FieldRef{Node: "3", Field: "text"},
			SamplerNode:    "4",
			CheckpointNode: "1",
			VAENode:        "10",
			Images: map[string]workflow.FieldRef{
				workflow.RoleImage: {Node: "17", Field: "image"},
			},
		},
		ImageRoles: []string{workflow.RoleImage},
	},
	model.KindInpaint: {
		Template: "inpaint",
		Binding: workflow.Binding{
			Prompt:         &workflow.FieldRef{Node: "2", Field: "text"},
			NegativePrompt: &workflow.FieldRef{Node: "3", Field: "text"},
			SamplerNode:    "4",
			CheckpointNode: "1",
			VAENode:        "10",
			Images: map[string]workflow.FieldRef{
				workflow.RoleImage: {Node: "28", Field: "image"},
				workflow.RoleMask:  {Node: "29", Field: "image"},
			},
		},
		ImageRoles: []string{workflow.RoleImage, workflow.RoleMask},
	},
	model.KindGarmentSwap: {
		Template: "garmentswap",
		Binding: workflow.Binding{
			SamplerNode: "5",
			Images: map[string]workflow.FieldRef{
				workflow.RolePerson:  {Node: "3", Field: "image"},
				workflow.RoleGarment: {Node: "4", Field: "image"},
			},
		},
		ImageRoles: []string{workflow.RolePerson, workflow.RoleGarment},
	},
	model.KindImg2Vid: {
		Template: "img2vid",
		Binding: workflow.Binding{
			SamplerNode: "13",
			SizeNode:    "11",
			Images: map[string]workflow.FieldRef{
				workflow.RoleImage: {Node: "10", Field: "image"},
			},
		},
		ImageRoles: []string{workflow.RoleImage},
	},
}

// SpecFor returns the KindSpec for a request kind.
func SpecFor(kind model.Kind) (KindSpec, bool) {
	spec, ok := kindSpecs[kind]
	return spec, ok
}
