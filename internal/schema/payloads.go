package schema

// Built-in payload schemas. Payloads are immutable after creation except by
// the requester while the request is still pending, so validation happens
// once at the write sites.
const (
	RepairPayload = "repair"
	PickupPayload = "pickup"
)

var builtin = map[string]string{
	RepairPayload: `{
		"type": "object",
		"properties": {
			"deviceType": {"type": "string", "minLength": 1},
			"brand": {"type": "string"},
			"model": {"type": "string"},
			"issue": {"type": "string", "minLength": 1}
		},
		"required": ["deviceType", "issue"],
		"additionalProperties": true
	}`,
	PickupPayload: `{
		"type": "object",
		"properties": {
			"items": {"type": "string", "minLength": 1},
			"quantity": {"type": "integer", "minimum": 1},
			"address": {"type": "string", "minLength": 1}
		},
		"required": ["items", "quantity", "address"],
		"additionalProperties": true
	}`,
}
