package api

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	idScheme      = "id:"
	uuidScheme    = "uuid:"
	urnUUIDScheme = "urn:uuid:"
)

// Id is an opaque identifier for data sources, patches and clients.
//
// An Id is either a random UUID or an arbitrary string token. The zero Id is
// the nil id, used for "no previous patch". Id is comparable and may be used
// as a map key.
type Id struct {
	uuid uuid.UUID
	str  string
	set  bool
}

// NewId returns a fresh random (version 4) Id. The randomness comes from
// crypto/rand, so ids are not guessable.
func NewId() Id {
	return Id{uuid: uuid.New(), set: true}
}

// IdFromUUID wraps a UUID.
func IdFromUUID(u uuid.UUID) Id {
	return Id{uuid: u, set: true}
}

// IdFromString returns a string Id holding s verbatim. It does not
// interpret schemes or UUID syntax; use ParseId for that.
func IdFromString(s string) (Id, error) {
	if s == "" {
		return Id{}, Errorf(ErrCodeMalformedId, "empty id string")
	}
	return Id{str: s}, nil
}

// ParseId parses the canonical or plain form of an Id.
//
// Accepted forms are an optional "id:", "uuid:" or "urn:uuid:" scheme
// followed by a UUID, a double quoted token, or a bare token without
// whitespace or quotes. The uuid schemes require a UUID.
func ParseId(text string) (Id, error) {
	s := text
	uuidOnly := false
	switch {
	case strings.HasPrefix(s, urnUUIDScheme):
		s, uuidOnly = s[len(urnUUIDScheme):], true
	case strings.HasPrefix(s, uuidScheme):
		s, uuidOnly = s[len(uuidScheme):], true
	case strings.HasPrefix(s, idScheme):
		s = s[len(idScheme):]
	}
	if s == "" {
		return Id{}, Errorf(ErrCodeMalformedId, "empty id %q", text)
	}
	if maybeUUID(s) {
		if u, err := uuid.Parse(s); err == nil {
			return IdFromUUID(u), nil
		}
	}
	if uuidOnly {
		return Id{}, Errorf(ErrCodeMalformedId, "not a uuid: %q", text)
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return IdFromString(s[1 : len(s)-1])
	}
	for _, r := range s {
		if r == '"' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return Id{}, Errorf(ErrCodeMalformedId, "invalid character %q in id %q", r, text)
		}
	}
	return Id{str: s}, nil
}

// MustParseId is like ParseId but panics on error. For tests and constants.
func MustParseId(text string) Id {
	id, err := ParseId(text)
	if err != nil {
		panic(err)
	}
	return id
}

// maybeUUID is a quick shape check: 36 chars with a dash at 8.
func maybeUUID(s string) bool {
	return len(s) == 36 && s[8] == '-'
}

// IsNil reports whether id is the nil id.
func (id Id) IsNil() bool {
	return !id.set && id.str == ""
}

// IsUUID reports whether id holds a UUID.
func (id Id) IsUUID() bool {
	return id.set
}

// String returns the canonical form; ParseId(id.String()) == id.
func (id Id) String() string {
	switch {
	case id.set:
		return idScheme + id.uuid.String()
	case id.str != "":
		return idScheme + `"` + id.str + `"`
	}
	return ""
}

// Plain returns the id without scheme, suitable for query parameters and
// file names. String ids are quoted only when ParseId would otherwise
// read them differently, so ParseId(id.Plain()) == id.
func (id Id) Plain() string {
	if id.set {
		return id.uuid.String()
	}
	if needsQuote(id.str) {
		return `"` + id.str + `"`
	}
	return id.str
}

func needsQuote(s string) bool {
	if strings.HasPrefix(s, idScheme) || strings.HasPrefix(s, uuidScheme) || strings.HasPrefix(s, urnUUIDScheme) {
		return true
	}
	if maybeUUID(s) {
		if _, err := uuid.Parse(s); err == nil {
			return true
		}
	}
	for _, r := range s {
		if r == '"' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// Short returns an abbreviated form for log messages.
func (id Id) Short() string {
	if id.set {
		return id.uuid.String()[:6]
	}
	if len(id.str) > 8 {
		return id.str[:8]
	}
	return id.str
}

func (id Id) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Id) UnmarshalText(d []byte) error {
	if len(d) == 0 {
		*id = Id{}
		return nil
	}
	p, err := ParseId(string(d))
	if err != nil {
		return err
	}
	*id = p
	return nil
}

var (
	_ msgpack.CustomEncoder = Id{}
	_ msgpack.CustomDecoder = (*Id)(nil)
)

func (id Id) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(id.String())
}

func (id *Id) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return id.UnmarshalText([]byte(s))
}
