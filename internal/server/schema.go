package server

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// frameSchema validates every inbound frame before it reaches a handler:
// known type, string event_id, and the payload fields each type requires.
const frameSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {
			"enum": ["query_case", "generate_report", "cancel_job", "job_status", "ack", "heartbeat"]
		},
		"event_id": {"type": "string"},
		"payload": {"type": "object"}
	},
	"additionalProperties": false,
	"allOf": [
		{
			"if": {"properties": {"type": {"enum": ["query_case", "generate_report"]}}},
			"then": {
				"required": ["payload"],
				"properties": {
					"payload": {
						"required": ["case_id"],
						"properties": {
							"case_id": {"type": "string", "minLength": 1},
							"section": {"type": "string"}
						}
					}
				}
			}
		},
		{
			"if": {"properties": {"type": {"enum": ["cancel_job", "job_status"]}}},
			"then": {
				"required": ["payload"],
				"properties": {
					"payload": {
						"required": ["job_id"],
						"properties": {"job_id": {"type": "string", "minLength": 1}}
					}
				}
			}
		},
		{
			"if": {"properties": {"type": {"const": "ack"}}},
			"then": {"required": ["event_id"]}
		}
	]
}`

var compiledFrameSchema = jsonschema.MustCompileString("frame.json", frameSchema)

// validateFrame checks one raw inbound frame against the schema.
func validateFrame(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("frame is not valid JSON: %w", err)
	}
	if err := compiledFrameSchema.Validate(v); err != nil {
		return fmt.Errorf("frame rejected: %w", err)
	}
	return nil
}
