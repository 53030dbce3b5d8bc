package comfyui

import (
	"fmt"

	"github.com/tidwall/gjson"

	"imagyn/domain/core"
)

// ImageRef addresses one produced image on the backend.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the output block of one executed node.
type NodeOutput struct {
	NodeID string
	Images []ImageRef
}

// ExecutionRecord is the backend's history entry for one job. Outputs keep the
// order the backend reported them in.
type ExecutionRecord struct {
	JobID   core.JobID
	Outputs []NodeOutput
}

func parseHistory(id core.JobID, body []byte) *ExecutionRecord {
	record := &ExecutionRecord{JobID: id}
	if !gjson.ValidBytes(body) {
		return record
	}

	var entry gjson.Result
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if key.String() == id.String() {
			entry = value
			return false
		}
		return true
	})
	if !entry.Exists() {
		return record
	}

	entry.Get("outputs").ForEach(func(nodeID, output gjson.Result) bool {
		out := NodeOutput{NodeID: nodeID.String()}
		images := output.Get("images")
		if images.IsArray() {
			out.Images = []ImageRef{}
			for _, img := range images.Array() {
				out.Images = append(out.Images, ImageRef{
					Filename:  img.Get("filename").String(),
					Subfolder: img.Get("subfolder").String(),
					Type:      img.Get("type").String(),
				})
			}
		}
		record.Outputs = append(record.Outputs, out)
		return true
	})
	return record
}

// FirstImage returns the first image of the first node output that lists images.
func FirstImage(record *ExecutionRecord) (ImageRef, error) {
	if record != nil {
		for _, out := range record.Outputs {
			if len(out.Images) > 0 {
				return out.Images[0], nil
			}
		}
	}
	id := core.JobID("")
	if record != nil {
		id = record.JobID
	}
	return ImageRef{}, fmt.Errorf("%w: job %s", core.ErrNoOutputFound, id)
}
