package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagyn/domain/core"
	"imagyn/domain/generation"
)

func TestParseTemplateKeepsDeclaredOrder(t *testing.T) {
	const unordered = `{
		"9": {"class_type": "SaveImage", "inputs": {}},
		"10": {"class_type": "CLIPTextEncode", "inputs": {"text": "x"}},
		"2": {"class_type": "CLIPTextEncode", "inputs": {"text": "y"}}
	}`
	tmpl := mustParse(t, unordered)

	assert.Equal(t, 3, tmpl.Len())
	assert.Equal(t, []string{"9", "10", "2"}, tmpl.Graph().IDs())
	assert.Equal(t, []string{"10", "2"}, tmpl.FindNodes("CLIPTextEncode"))
	assert.Empty(t, tmpl.FindNodes("KSampler"))

	out, err := tmpl.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"9":{"class_type":"SaveImage","inputs":{}},"10":{"class_type":"CLIPTextEncode","inputs":{"text":"x"}},"2":{"class_type":"CLIPTextEncode","inputs":{"text":"y"}}}`,
		string(out))
}

func TestParseTemplateRoles(t *testing.T) {
	tmpl := mustParse(t, scenarioTemplate)
	g := tmpl.Graph()

	tests := map[string]Role{
		"2": RoleTextEncoder,
		"3": RoleSampler,
		"4": RoleLatentSize,
		"6": RoleOther,
		"8": RoleAdapterLoader,
	}
	for id, want := range tests {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, want, n.Role(), "node %s", id)
	}
	assert.True(t, tmpl.HasRole(RoleAdapterLoader))
	assert.Equal(t, "sampler", RoleSampler.String())
}

func TestParseTemplateErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"1": `},
		{"array root", `[{"class_type": "KSampler"}]`},
		{"empty object", `{}`},
		{"node not object", `{"1": "KSampler"}`},
		{"missing class_type", `{"1": {"inputs": {}}}`},
		{"non-string class_type", `{"1": {"class_type": 3, "inputs": {}}}`},
		{"inputs not object", `{"1": {"class_type": "KSampler", "inputs": [1, 2]}}`},
		{"duplicate id", `{"1": {"class_type": "A"}, "1": {"class_type": "B"}}`},
		{"editor format", `{"nodes": [{"id": 1}], "links": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate("bad", []byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flux_dev.json")
	require.NoError(t, os.WriteFile(path, []byte(scenarioTemplate), 0o644))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "flux_dev", tmpl.Name())
	assert.Equal(t, 8, tmpl.Len())

	_, err = LoadTemplate(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestBundledWorkflowPatches(t *testing.T) {
	tmpl, err := LoadTemplate(filepath.Join("..", "..", "workflows", "flux_dev.json"))
	require.NoError(t, err)
	assert.Equal(t, "flux_dev", tmpl.Name())
	assert.True(t, tmpl.HasRole(RoleAdapterLoader))

	p := NewPatcher().Patch(tmpl, generation.Request{
		Prompt:          "a fox in the snow",
		NegativePrompt:  "blurry",
		Seed:            seedPtr(7),
		Width:           832,
		Height:          1216,
		Adapters:        []string{"anime"},
		AdaptersEnabled: true,
	}, []string{"ink_wash.safetensors", "anime.safetensors"})

	assert.Equal(t, "6", p.PositiveNode)
	assert.Equal(t, "7", p.NegativeNode)
	assert.Equal(t, "anime.safetensors", p.Adapter)
	assert.Equal(t, "a fox in the snow", nodeText(t, p.Graph, "6"))
	assert.Equal(t, "blurry", nodeText(t, p.Graph, "7"))

	latent, _ := p.Graph.Node("5")
	w, _ := latent.Input(InputWidth)
	assert.EqualValues(t, 832, w)
	sampler, _ := p.Graph.Node("3")
	seed, _ := sampler.Input(InputSeed)
	assert.EqualValues(t, 7, seed)
}

func TestGraphCloneIsIndependent(t *testing.T) {
	tmpl := mustParse(t, scenarioTemplate)
	g := tmpl.Graph()

	loader, _ := g.Node("8")
	require.NoError(t, loader.Set("lora_name", "changed.safetensors"))
	clip, _ := loader.Input("clip")
	clip.([]any)[0] = "99"

	fresh, _ := tmpl.Graph().Node("8")
	name, _ := fresh.Input("lora_name")
	freshClip, _ := fresh.Input("clip")
	assert.Equal(t, "placeholder.safetensors", name)
	assert.Equal(t, "7", freshClip.([]any)[0])
}

func TestNodeSetRejectsNonJSONValues(t *testing.T) {
	g := mustParse(t, scenarioTemplate).Graph()
	n, _ := g.Node("3")

	assert.NoError(t, n.Set("denoise", 0.75))
	assert.NoError(t, n.Set("extra", map[string]any{"a": []any{1.0, "b", nil}}))
	assert.Error(t, n.Set("bad", struct{}{}))
	assert.Error(t, n.Set("bad", []string{"x"}))
	assert.False(t, n.HasInput("bad"))
}

func TestResolveAdapter(t *testing.T) {
	catalog := []string{"a.safetensors", "b.safetensors", "Watercolor_XL.safetensors"}
	tests := []struct {
		requested string
		want      string
	}{
		{"b.safetensors", "b.safetensors"},
		{"b", "b.safetensors"},
		{"watercolor", "Watercolor_XL.safetensors"},
		{"zzz", "a.safetensors"},
	}
	for _, tt := range tests {
		got, ok := ResolveAdapter(tt.requested, catalog)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "requested %q", tt.requested)
	}

	_, ok := ResolveAdapter("b", nil)
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "anime_style", DisplayName("anime_style.safetensors"))
	assert.Equal(t, "old_model", DisplayName("old_model.ckpt"))
	assert.Equal(t, "plain", DisplayName("plain"))
}
