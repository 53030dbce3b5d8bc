package generation

import (
	"fmt"
	"strings"

	"imagyn/domain/core"
)

// Defaults applied when a request leaves a field unset.
const (
	DefaultWidth  = 1024
	DefaultHeight = 1024
	DefaultSteps  = 20
	DefaultCFG    = 3.5

	MinEditStrength     = 0.1
	MaxEditStrength     = 1.0
	DefaultEditStrength = 0.7
)

// Request is a single text-to-image generation request.
type Request struct {
	Prompt          string   `json:"prompt"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	Seed            *uint32  `json:"seed,omitempty"`
	Width           int      `json:"width,omitempty"`
	Height          int      `json:"height,omitempty"`
	Adapters        []string `json:"adapters,omitempty"`
	AdaptersEnabled bool     `json:"-"`
}

// WithDefaults fills unset dimensions.
func (r Request) WithDefaults() Request {
	if r.Width <= 0 {
		r.Width = DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = DefaultHeight
	}
	return r
}

// Validate checks the caller-supplied fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", core.ErrInvalidInput)
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %dx%d", core.ErrInvalidInput, r.Width, r.Height)
	}
	return nil
}

// EditRequest re-generates a stored image with a new prompt. Edits are plain
// re-generations; EditStrength is validated but not applied.
type EditRequest struct {
	ImageID        core.ArtifactID `json:"image_id"`
	Prompt         string          `json:"new_prompt"`
	NegativePrompt string          `json:"negative_prompt,omitempty"`
	Adapters       []string        `json:"adapters,omitempty"`
	EditStrength   float64         `json:"edit_strength,omitempty"`
}

// Validate checks the edit fields and fills the default strength.
func (r *EditRequest) Validate() error {
	if r.ImageID == "" {
		return fmt.Errorf("%w: image_id is required", core.ErrInvalidInput)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: new_prompt is required", core.ErrInvalidInput)
	}
	if r.EditStrength == 0 {
		r.EditStrength = DefaultEditStrength
	}
	if r.EditStrength < MinEditStrength || r.EditStrength > MaxEditStrength {
		return fmt.Errorf("%w: edit_strength must be within [%.1f, %.1f]", core.ErrInvalidInput, MinEditStrength, MaxEditStrength)
	}
	return nil
}

// Metadata describes how an artifact was produced. It is created once per
// successful job and never modified.
type Metadata struct {
	Prompt                string   `json:"prompt"`
	NegativePrompt        string   `json:"negative_prompt"`
	AdaptersUsed          []string `json:"adapters_used"`
	GenerationTimeSeconds float64  `json:"generation_time_seconds"`
	Seed                  uint32   `json:"seed"`
	Width                 int      `json:"width"`
	Height                int      `json:"height"`
	Steps                 int      `json:"steps"`
	CFG                   float64  `json:"cfg"`
	PipelineName          string   `json:"pipeline_name"`
}

// Record is a stored artifact.
type Record struct {
	ID           core.ArtifactID `json:"id"`
	AbsolutePath string          `json:"absolute_path"`
	Metadata     Metadata        `json:"metadata"`
	CreatedAt    core.Timestamp  `json:"created_at"`
	InlineData   string          `json:"inline_data,omitempty"`
}

// WithoutInline returns a copy of the record with inline data stripped.
func (r Record) WithoutInline() Record {
	r.InlineData = ""
	return r
}

// AdapterDescriptor is a style adapter advertised by the backend catalog.
type AdapterDescriptor struct {
	DisplayName string   `json:"display_name"`
	CatalogName string   `json:"catalog_name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// CatalogNames extracts the catalog names in order.
func CatalogNames(adapters []AdapterDescriptor) []string {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.CatalogName)
	}
	return names
}

// StorageStats aggregates the artifact store contents.
type StorageStats struct {
	TotalCount              int     `json:"total_count"`
	TotalBytes              int64   `json:"total_bytes"`
	TotalMB                 float64 `json:"total_mb"`
	RootPath                string  `json:"root_path"`
	MeanGenerationSeconds   float64 `json:"mean_generation_seconds"`
	MedianGenerationSeconds float64 `json:"median_generation_seconds"`
}
