package archive

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const metadataSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "excerpt", "content"],
  "properties": {
    "title": {"type": "string"},
    "excerpt": {"type": "string"},
    "content": {"type": "string"},
    "category": {"type": ["string", "null"]},
    "tags": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    },
    "date": {"type": ["string", "null"]}
  }
}`

var metadataSchema = jsonschema.MustCompileString("inmemory://post.schema.json", metadataSchemaJSON)

// importedMetadata is what the decoder keeps from post.json. The date is
// ignored; the store stamps its own on insert.
type importedMetadata struct {
	Title    string   `json:"title"`
	Excerpt  string   `json:"excerpt"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func parseMetadata(data []byte) (importedMetadata, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return importedMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if err := metadataSchema.Validate(raw); err != nil {
		return importedMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	var meta importedMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return importedMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	return meta, nil
}
