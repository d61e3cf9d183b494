package senml

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type jsonRecord struct {
	BaseName    string   `json:"bn,omitempty"`
	BaseTime    float64  `json:"bt,omitempty"`
	Name        string   `json:"n,omitempty"`
	Unit        string   `json:"u,omitempty"`
	Value       *float64 `json:"v,omitempty"`
	StringValue *string  `json:"vs,omitempty"`
	BoolValue   *bool    `json:"vb,omitempty"`
	Time        float64  `json:"t,omitempty"`
	DataValue   *string  `json:"vd,omitempty"`
	ObjectLink  *string  `json:"vlo,omitempty"`
}

var jsonLabels = map[string]bool{
	"bn": true, "bt": true, "n": true, "u": true, "v": true,
	"vs": true, "vb": true, "t": true, "vd": true, "vlo": true,
}

// EncodeJSON encodes a pack as SenML-JSON. Data values use unpadded
// base64url.
func EncodeJSON(p Pack) ([]byte, error) {
	out := make([]jsonRecord, len(p))
	for i, r := range p {
		out[i] = jsonRecord{
			BaseName:    r.BaseName,
			BaseTime:    r.BaseTime,
			Name:        r.Name,
			Unit:        r.Unit,
			Value:       r.Value,
			StringValue: r.StringValue,
			BoolValue:   r.BoolValue,
			Time:        r.Time,
			ObjectLink:  r.ObjectLink,
		}
		if r.DataValue != nil {
			s := base64.RawURLEncoding.EncodeToString(r.DataValue)
			out[i].DataValue = &s
		}
	}
	return json.Marshal(out)
}

// DecodeJSON decodes a SenML-JSON pack with the same strictness as
// DecodeCBOR.
func DecodeJSON(data []byte) (Pack, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw []map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, invalid("json: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, invalid("json: trailing data")
	}

	p := make(Pack, len(raw))
	for i, m := range raw {
		r, err := recordFromJSON(m)
		if err != nil {
			return nil, invalid("record %d: %v", i, err)
		}
		p[i] = r
	}
	return p, nil
}

func recordFromJSON(m map[string]json.RawMessage) (Record, error) {
	for k, v := range m {
		if !jsonLabels[k] {
			return Record{}, fmt.Errorf("unsupported label %q", k)
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return Record{}, fmt.Errorf("label %q is null", k)
		}
	}
	// Re-marshalling a map of raw messages cannot fail.
	obj, _ := json.Marshal(m)
	var jr jsonRecord
	if err := json.Unmarshal(obj, &jr); err != nil {
		return Record{}, err
	}
	r := Record{
		BaseName:    jr.BaseName,
		BaseTime:    jr.BaseTime,
		Name:        jr.Name,
		Unit:        jr.Unit,
		Value:       jr.Value,
		StringValue: jr.StringValue,
		BoolValue:   jr.BoolValue,
		Time:        jr.Time,
		ObjectLink:  jr.ObjectLink,
	}
	if jr.DataValue != nil {
		b, err := base64.RawURLEncoding.DecodeString(*jr.DataValue)
		if err != nil {
			return Record{}, fmt.Errorf("label \"vd\": %w", err)
		}
		r.DataValue = b
	}
	return r, nil
}
