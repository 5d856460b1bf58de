package patch

import (
	"bytes"

	"github.com/goccy/go-yaml"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signadot/deltalog/system/deltad/api"
)

// ContentType is the media type of Marshal output.
const ContentType = "application/x-msgpack"

type wirePatch struct {
	Events []Event `msgpack:"events"`
}

// Marshal encodes p in the binary form used by patch stores and on the wire.
func Marshal(p *Patch) ([]byte, error) {
	return msgpack.Marshal(&wirePatch{Events: p.events})
}

// Unmarshal decodes the output of Marshal. Undecodable input is reported
// as api.ErrBadPatch.
func Unmarshal(d []byte) (*Patch, error) {
	w := &wirePatch{}
	dec := msgpack.NewDecoder(bytes.NewReader(d))
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(w); err != nil {
		return nil, api.Errorf(api.ErrCodeBadPatch, "decode patch: %v", err)
	}
	return &Patch{events: w.Events}, nil
}

// MarshalYAML renders p as a YAML list of events, one mapping per event.
func MarshalYAML(p *Patch) ([]byte, error) {
	return yaml.Marshal(p.events)
}

// UnmarshalYAML parses the output of MarshalYAML.
func UnmarshalYAML(d []byte) (*Patch, error) {
	var evs []Event
	if err := yaml.UnmarshalWithOptions(d, &evs, yaml.Strict()); err != nil {
		return nil, api.Errorf(api.ErrCodeBadPatch, "parse patch: %v", err)
	}
	return &Patch{events: evs}, nil
}
