package events

import (
	"encoding/json"
	"fmt"
)

// decodeIngestInput converts a queue job's generic payload map back into
// an IngestInput. The payload was itself produced by json-decoding the
// ingestion request body (see internal/httpapi), so round-tripping through
// encoding/json here is exact and avoids a second hand-rolled decoder.
func decodeIngestInput(payload map[string]interface{}) (IngestInput, error) {
	var in IngestInput
	raw, err := json.Marshal(payload)
	if err != nil {
		return in, fmt.Errorf("encode queue payload: %w", err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decode queue payload: %w", err)
	}
	return in, nil
}
