package power

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/request.schema.json
var requestSchemaJSON string

var requestSchema = jsonschema.MustCompileString("request.schema.json", requestSchemaJSON)

// Request is a single power estimation request. It is built once per
// connection by ParseRequest and never modified afterwards.
type Request struct {
	Source         *string
	Metrics        []string
	Values         [][]float64
	SystemFeatures []string
	SystemValues   []any
	OutputType     OutputType
	TrainerName    string
	Filter         string

	frame *Frame
}

// wireRequest mirrors the request schema field by field.
type wireRequest struct {
	Metrics        []string    `json:"metrics"`
	Values         [][]float64 `json:"values"`
	OutputType     string      `json:"output_type"`
	Source         *string     `json:"source"`
	SystemFeatures []string    `json:"system_features"`
	SystemValues   []any       `json:"system_values"`
	TrainerName    *string     `json:"trainer_name"`
	Filter         *string     `json:"filter"`
}

// ParseRequest validates data against the request schema and decodes it
// into a Request. Unknown or missing fields are rejected. The returned
// error wraps ErrMalformedRequest.
func ParseRequest(data []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after request object", ErrMalformedRequest)
	}

	if err := requestSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	strict := json.NewDecoder(bytes.NewReader(data))
	strict.DisallowUnknownFields()
	strict.UseNumber()

	var wire wireRequest
	if err := strict.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	req := &Request{
		Source:         wire.Source,
		Metrics:        wire.Metrics,
		Values:         wire.Values,
		SystemFeatures: wire.SystemFeatures,
		SystemValues:   wire.SystemValues,
		OutputType:     OutputType(wire.OutputType),
	}
	if wire.TrainerName != nil {
		req.TrainerName = *wire.TrainerName
	}
	if wire.Filter != nil {
		req.Filter = *wire.Filter
	}

	frame, err := NewFrame(req.Metrics, req.Values, req.SystemFeatures, req.SystemValues)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	req.frame = frame

	return req, nil
}

// EnergySource returns the normalised energy source of the request.
func (r *Request) EnergySource() EnergySource {
	return NormalizeSource(r.Source)
}

// Frame returns the feature frame: the metric table with the system
// features appended as constant columns.
func (r *Request) Frame() *Frame {
	return r.frame
}
