package workflow

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func testGraph() Graph {
	return Graph{
		"1": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{
			"ckpt_name": "base.safetensors",
		}},
		"2": {ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": "default positive",
			"clip": []any{"1", float64(1)},
		}},
		"3": {ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": "default negative",
			"clip": []any{"1", float64(1)},
		}},
		"4": {ClassType: "KSampler", Inputs: map[string]any{
			"seed":         float64(0),
			"steps":        float64(30),
			"cfg":          7.0,
			"sampler_name": "euler",
			"scheduler":    "normal",
			"denoise":      1.0,
			"model":        []any{"1", float64(0)},
			"positive":     []any{"2", float64(0)},
			"negative":     []any{"3", float64(0)},
			"latent_image": []any{"15", float64(0)},
		}},
		"10": {ClassType: "VAELoader", Inputs: map[string]any{
			"vae_name": "default.vae",
		}},
		"15": {ClassType: "EmptyLatentImage", Inputs: map[string]any{
			"width":  float64(512),
			"height": float64(512),
		}},
		"17": {ClassType: "LoadImage", Inputs: map[string]any{
			"image": "placeholder.png",
		}},
	}
}

func testBinding() Binding {
	return Binding{
		Prompt:         &FieldRef{Node: "2", Field: "text"},
		NegativePrompt: &FieldRef{Node: "3", Field: "text"},
		SamplerNode:    "4",
		SizeNode:       "15",
		CheckpointNode: "1",
		VAENode:        "10",
		Images: map[string]FieldRef{
			RoleImage: {Node: "17", Field: "image"},
		},
	}
}

func TestPatchDoesNotMutateTemplate(t *testing.T) {
	tpl := testGraph()
	before, _ := json.Marshal(tpl)

	_, err := Patch(tpl, testBinding(), Params{
		Prompt:  "a red fox",
		Steps:   "50",
		Denoise: "0.8",
		Width:   "1024",
		Images:  map[string]string{RoleImage: "/uploads/x.png"},
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}

	after, _ := json.Marshal(tpl)
	if string(before) != string(after) {
		t.Fatalf("template mutated by patch:\nbefore %s\nafter  %s", before, after)
	}
}

func TestPatchAppliesAllParams(t *testing.T) {
	g, err := Patch(testGraph(), testBinding(), Params{
		Prompt:         "a red fox in the snow",
		NegativePrompt: "blurry",
		Seed:           "42",
		Steps:          "50",
		CFG:            "7.5",
		SamplerName:    "dpmpp_2m",
		Scheduler:      "karras",
		Denoise:        "0.8",
		Width:          "1024",
		Height:         "768",
		Checkpoint:     "other.safetensors",
		VAE:            "other.vae",
		Images:         map[string]string{RoleImage: "/uploads/src.png"},
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}

	if got := g["2"].Inputs["text"]; got != "a red fox in the snow" {
		t.Errorf("prompt = %v", got)
	}
	if got := g["3"].Inputs["text"]; got != "blurry" {
		t.Errorf("negative = %v", got)
	}
	sampler := g["4"].Inputs
	if sampler["seed"] != 42 {
		t.Errorf("seed = %v (%T), want int 42", sampler["seed"], sampler["seed"])
	}
	if sampler["steps"] != 50 {
		t.Errorf("steps = %v", sampler["steps"])
	}
	if sampler["cfg"] != 7.5 {
		t.Errorf("cfg = %v (%T), want float 7.5", sampler["cfg"], sampler["cfg"])
	}
	if sampler["sampler_name"] != "dpmpp_2m" || sampler["scheduler"] != "karras" {
		t.Errorf("sampler_name/scheduler = %v/%v", sampler["sampler_name"], sampler["scheduler"])
	}
	if sampler["denoise"] != 0.8 {
		t.Errorf("denoise = %v", sampler["denoise"])
	}
	if g["15"].Inputs["width"] != 1024 || g["15"].Inputs["height"] != 768 {
		t.Errorf("size = %vx%v", g["15"].Inputs["width"], g["15"].Inputs["height"])
	}
	if g["1"].Inputs["ckpt_name"] != "other.safetensors" {
		t.Errorf("checkpoint = %v", g["1"].Inputs["ckpt_name"])
	}
	if g["10"].Inputs["vae_name"] != "other.vae" {
		t.Errorf("vae = %v", g["10"].Inputs["vae_name"])
	}
	if g["17"].Inputs["image"] != "/uploads/src.png" {
		t.Errorf("image = %v", g["17"].Inputs["image"])
	}

	// Structural references must survive untouched.
	if !reflect.DeepEqual(g["4"].Inputs["model"], []any{"1", float64(0)}) {
		t.Errorf("model ref altered: %v", g["4"].Inputs["model"])
	}
}

func TestPatchAbsentParamsKeepDefaults(t *testing.T) {
	g, err := Patch(testGraph(), testBinding(), Params{Prompt: "only the prompt"})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if g["4"].Inputs["steps"] != float64(30) {
		t.Errorf("steps = %v, want template default 30", g["4"].Inputs["steps"])
	}
	if g["3"].Inputs["text"] != "default negative" {
		t.Errorf("negative = %v, want template default", g["3"].Inputs["text"])
	}
}

func TestPatchUnknownImageRole(t *testing.T) {
	_, err := Patch(testGraph(), testBinding(), Params{
		Images: map[string]string{RoleGarment: "/uploads/g.png"},
	})
	var ipe *InvalidParamError
	if !errors.As(err, &ipe) {
		t.Fatalf("err = %v, want InvalidParamError", err)
	}
	if ipe.Param != RoleGarment {
		t.Errorf("param = %q", ipe.Param)
	}
}

func TestPatchUnboundPromptRejected(t *testing.T) {
	b := testBinding()
	b.Prompt = nil
	_, err := Patch(testGraph(), b, Params{Prompt: "hello"})
	var ipe *InvalidParamError
	if !errors.As(err, &ipe) {
		t.Fatalf("err = %v, want InvalidParamError", err)
	}
}

func TestPatchMissingBoundNode(t *testing.T) {
	b := testBinding()
	b.SamplerNode = "99"
	_, err := Patch(testGraph(), b, Params{Steps: "20"})
	var ipe *InvalidParamError
	if !errors.As(err, &ipe) {
		t.Fatalf("err = %v, want InvalidParamError", err)
	}
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"42", 42},
		{"0", 0},
		{"-7", -7},
		{"7.5", 7.5},
		{"0.85", 0.85},
		{"euler", "euler"},
		{"1.2.3", "1.2.3"},
		{"", ""},
		{"10x", "10x"},
	}
	for _, tc := range cases {
		if got := Coerce(tc.in); got != tc.want {
			t.Errorf("Coerce(%q) = %v (%T), want %v (%T)", tc.in, got, got, tc.want, tc.want)
		}
	}
}
