package types

// ErrorResponse is the JSON error payload for all endpoints.
type ErrorResponse struct {
	// example: invalid dimension -1 for tensor "input_ids"
	Error string `json:"error"`
	// example: 400
	Code int `json:"code"`
}

// ResolveRequest asks for concrete shapes, either from a model preset
// (model + batch + seq_len) or from explicit clauses.
type ResolveRequest struct {
	// Preset model id.
	// example: bert-base-uncased
	Model string `json:"model,omitempty"`
	// Batch size; becomes the leading dimension of every tensor.
	// example: 1
	Batch int `json:"batch,omitempty"`
	// Sequence length substituted into preset sequence slots.
	// example: 100
	SeqLen int `json:"seq_len,omitempty"`
	// Explicit shape clauses; overrides the preset when set.
	// example: input_ids[1,100], attention_mask[1,100]
	Clauses string `json:"clauses,omitempty"`
}

// StatusResponse reports daemon health and job counts.
type StatusResponse struct {
	Ready bool `json:"ready"`
	Jobs  int  `json:"jobs"`
}
