package workflow

// Image roles referenced by bindings and upload handlers.
const (
	RoleImage   = "image"
	RoleMask    = "mask"
	RolePerson  = "person"
	RoleGarment = "garment"
)

// FieldRef addresses one leaf input field inside a template.
type FieldRef struct {
	Node  string
	Field string
}

// Binding maps caller-facing parameter roles onto template node fields.
// Node ids differ per template, so every template carries its own table;
// handlers never touch node-id literals.
type Binding struct {
	// Prompt / NegativePrompt point at the positive and negative text
	// inputs. Nil means the template has no such role.
	Prompt         *FieldRef
	NegativePrompt *FieldRef

	// SamplerNode holds the numeric sampling parameters
	// (seed, steps, cfg, sampler_name, scheduler, denoise).
	SamplerNode string

	// SizeNode holds width/height (the empty-latent node).
	SizeNode string

	// Images maps an upload role to the field receiving its file path.
	Images map[string]FieldRef

	// CheckpointNode / VAENode receive model-selection names.
	CheckpointNode string
	VAENode        string
}
