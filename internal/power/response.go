package power

import (
	"encoding/json"
	"math"
)

// Response is the reply written back on the connection. Msg is empty on
// success; any other value means Powers must not be trusted.
type Response struct {
	Powers map[string][]float64 `json:"powers"`
	Msg    string               `json:"msg"`
}

// Success builds a response carrying predicted powers per component.
func Success(powers map[string][]float64) Response {
	if powers == nil {
		powers = map[string][]float64{}
	}
	return Response{Powers: powers}
}

// Failure builds a response with no powers and a diagnostic message.
func Failure(msg string) Response {
	return Response{Powers: map[string][]float64{}, Msg: msg}
}

// OK reports whether the response carries a usable prediction.
func (r Response) OK() bool {
	return r.Msg == ""
}

// Encode marshals the response. Non-finite values cannot be represented in
// JSON so they turn the response into a failure.
func (r Response) Encode() ([]byte, error) {
	if component, ok := NonFinite(r.Powers); ok {
		return json.Marshal(Failure("non-finite power predicted for " + component))
	}
	if r.Powers == nil {
		r.Powers = map[string][]float64{}
	}
	return json.Marshal(r)
}

// NonFinite returns the first component holding a NaN or infinite value.
func NonFinite(powers map[string][]float64) (string, bool) {
	for component, values := range powers {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return component, true
			}
		}
	}
	return "", false
}

// DecodeResponse parses an encoded response.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, err
	}
	if resp.Powers == nil {
		resp.Powers = map[string][]float64{}
	}
	return resp, nil
}
