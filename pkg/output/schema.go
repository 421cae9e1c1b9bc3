package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://steam-review-ingest/schema/batch.json"

// batchSchema is the validation contract for one output file.
const batchSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$defs": {
		"hex224": {"type": "string", "pattern": "^[A-Fa-f0-9]{56}$"}
	},
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id", "author", "date", "hours", "content", "comments", "source", "helpful", "funny", "recommended"],
		"properties": {
			"id":          {"$ref": "#/$defs/hex224"},
			"author":      {"$ref": "#/$defs/hex224"},
			"date":        {"type": "string", "format": "date"},
			"hours":       {"type": "integer"},
			"content":     {"type": "string"},
			"comments":    {"type": "integer"},
			"source":      {"type": "string", "pattern": "^steam$"},
			"helpful":     {"type": "integer"},
			"funny":       {"type": "integer"},
			"recommended": {"type": "boolean"}
		}
	}
}`

var compiledSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(schemaURL, strings.NewReader(batchSchema)); err != nil {
		panic(fmt.Sprintf("output: add schema resource: %v", err))
	}
	return c.MustCompile(schemaURL)
}

// Validate checks raw file contents against the batch schema.
func Validate(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	return compiledSchema.Validate(doc)
}
