package pipeline

import (
	"strings"
	"time"

	"imagyn/domain/generation"
)

// NegativeVocabulary marks a text-encoder node as the negative prompt slot when
// any word appears (case-insensitively) in its template text.
//
// Known limitation: a positive template text using one of these words
// stylistically is classified as negative. There is no override.
var NegativeVocabulary = []string{"negative", "bad", "worst", "ugly", "blurry"}

// Input names written by the patcher.
const (
	InputText          = "text"
	InputSeed          = "seed"
	InputWidth         = "width"
	InputHeight        = "height"
	InputAdapterName   = "lora_name"
	InputStrengthModel = "strength_model"
	InputStrengthClip  = "strength_clip"
	InputSteps         = "steps"
	InputCFG           = "cfg"

	adapterStrength = 1.0
	avoidSeparator  = ". Avoid: "
)

// Patched is the result of applying one request to a template clone.
type Patched struct {
	Graph        *Graph
	Seed         uint32
	PositiveNode string
	NegativeNode string
	// Adapter is the resolved catalog name, empty when no adapter was applied.
	Adapter string
}

// Steps reads the sampling step count from the first sampler node.
func (p *Patched) Steps() int {
	if v, ok := p.samplerInput(InputSteps); ok {
		return int(v)
	}
	return generation.DefaultSteps
}

// CFG reads the guidance scale from the first sampler node.
func (p *Patched) CFG() float64 {
	if v, ok := p.samplerInput(InputCFG); ok {
		return v
	}
	return generation.DefaultCFG
}

func (p *Patched) samplerInput(key string) (float64, bool) {
	for _, id := range p.Graph.NodesWithRole(RoleSampler) {
		n, _ := p.Graph.Node(id)
		if v, ok := n.Input(key); ok {
			return numeric(v)
		}
	}
	return 0, false
}

// Patcher applies generation requests to pipeline templates. It is pure apart
// from the clock used to derive a seed.
type Patcher struct {
	now func() time.Time
}

// NewPatcher creates a patcher using the wall clock.
func NewPatcher() *Patcher {
	return &Patcher{now: time.Now}
}

// WithClock replaces the clock used for seed derivation.
func (p *Patcher) WithClock(now func() time.Time) *Patcher {
	return &Patcher{now: now}
}

// ResolveSeed returns the requested seed, or the current unix time in seconds mod 2^32.
func ResolveSeed(seed *uint32, now time.Time) uint32 {
	if seed != nil {
		return *seed
	}
	const modulus = int64(1) << 32
	secs := now.Unix()
	return uint32(((secs % modulus) + modulus) % modulus)
}

// Patch clones the template and applies prompt, seed, dimensions and adapter.
// Missing node categories are skipped silently. catalog is only consulted when an
// adapter is requested and enabled.
func (p *Patcher) Patch(tmpl *Template, req generation.Request, catalog []string) *Patched {
	g := tmpl.Graph()
	out := &Patched{Graph: g}

	out.PositiveNode, out.NegativeNode = applyPrompts(g, req.Prompt, req.NegativePrompt)

	out.Seed = ResolveSeed(req.Seed, p.now())
	applySeed(g, out.Seed)

	applyDimensions(g, req.Width, req.Height)

	if req.AdaptersEnabled && len(req.Adapters) > 0 {
		out.Adapter = applyAdapter(g, req.Adapters[0], catalog)
	}

	return out
}

func isNegativeText(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range NegativeVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// assignPromptRoles picks the positive and negative text-encoder nodes.
func assignPromptRoles(g *Graph) (positive, negative string) {
	encoders := g.NodesWithRole(RoleTextEncoder)
	for _, id := range encoders {
		n, _ := g.Node(id)
		if isNegativeText(n.Text()) {
			if negative == "" {
				negative = id
			}
		} else if positive == "" {
			positive = id
		}
	}

	if positive == "" {
		for _, id := range encoders {
			if id != negative {
				positive = id
				break
			}
		}
	}
	// A lone encoder that looked negative still has to carry the prompt.
	if positive == "" && negative != "" {
		positive, negative = negative, ""
	}
	if negative == "" {
		for _, id := range encoders {
			if id != positive {
				negative = id
				break
			}
		}
	}
	return positive, negative
}

func applyPrompts(g *Graph, prompt, negativePrompt string) (string, string) {
	positive, negative := assignPromptRoles(g)
	if positive == "" {
		return "", ""
	}

	pos, _ := g.Node(positive)
	pos.set(InputText, prompt)

	switch {
	case negative != "" && negativePrompt != "":
		neg, _ := g.Node(negative)
		neg.set(InputText, negativePrompt)
	case negative == "" && negativePrompt != "":
		pos.set(InputText, prompt+avoidSeparator+negativePrompt)
	}
	return positive, negative
}

func applySeed(g *Graph, seed uint32) {
	for _, id := range g.NodesWithRole(RoleSampler) {
		n, _ := g.Node(id)
		if n.HasInput(InputSeed) {
			n.set(InputSeed, int64(seed))
		}
	}
}

func applyDimensions(g *Graph, width, height int) {
	for _, id := range g.NodesWithRole(RoleLatentSize) {
		n, _ := g.Node(id)
		if n.HasInput(InputWidth) {
			n.set(InputWidth, width)
		}
		if n.HasInput(InputHeight) {
			n.set(InputHeight, height)
		}
	}
}

// applyAdapter touches only the first adapter-loader node and returns the resolved name.
func applyAdapter(g *Graph, requested string, catalog []string) string {
	loaders := g.NodesWithRole(RoleAdapterLoader)
	if len(loaders) == 0 {
		return ""
	}
	resolved, ok := ResolveAdapter(requested, catalog)
	if !ok {
		return ""
	}

	n, _ := g.Node(loaders[0])
	n.set(InputAdapterName, resolved)
	if n.HasInput(InputStrengthModel) {
		n.set(InputStrengthModel, adapterStrength)
	}
	if n.HasInput(InputStrengthClip) {
		n.set(InputStrengthClip, adapterStrength)
	}
	return resolved
}
