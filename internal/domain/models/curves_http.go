package models

// Requests for the classification HTTP endpoints and the queue/Kafka
// payloads. Coefficients travel as decimal strings because they are
// arbitrary precision.

type ClassifyRequest struct {
	A string `query:"a" json:"a" validate:"required,max=200,bigint"`
	B string `query:"b" json:"b" validate:"required,max=200,bigint"`
}

type CandidatesRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=1000"`
}

// ScanRequest enqueues every curve of a coefficient grid as queue jobs.
type ScanRequest struct {
	AMin string `json:"a_min" validate:"required,max=200,bigint"`
	AMax string `json:"a_max" validate:"required,max=200,bigint"`
	BMin string `json:"b_min" validate:"required,max=200,bigint"`
	BMax string `json:"b_max" validate:"required,max=200,bigint"`
	// MaxCurves caps the grid size accepted in one request.
	MaxCurves int `json:"max_curves" default:"10000" validate:"gte=1,lte=1000000"`
}

// JobClassifyCurve is the queue message type carrying a CurveRequest.
const JobClassifyCurve = "classify_curve"

// CurveRequest is the payload of a Kafka request message or a queue job.
type CurveRequest struct {
	RequestID string `json:"request_id,omitempty"`
	A         string `json:"a"`
	B         string `json:"b"`
}
