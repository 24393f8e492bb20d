// Package protocol defines the text wire format spoken on the robot link:
// JSON-encoded Command messages on the command channel and Status messages
// on the status channel. The two schemas never share a socket.
//
// The codec is deliberately lax about non-finite numbers: the legacy peer
// serializes with Python's json module, which emits bare NaN/Infinity
// tokens, and rejecting those is the safety validator's job, not ours.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/hri-lab/go-quadlink/pkg/geom"
)

// ErrMalformedPayload marks a payload that cannot be decoded: truncated
// data, a missing required field, or a field of the wrong type. Callers
// drop the message and keep going; it is never fatal to the link.
var ErrMalformedPayload = errors.New("protocol: malformed payload")

func malformedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// jsonFloat is a float64 that survives the bare NaN / Infinity /
// -Infinity tokens Python's json.dumps produces. Go's JSON scanner
// rejects those tokens before any unmarshaler runs, so incoming payloads
// are first rewritten by quoteNonFinite and the quoted forms handled
// here.
type jsonFloat float64

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "NaN", `"NaN"`:
		*f = jsonFloat(math.NaN())
		return nil
	case "Infinity", `"Infinity"`:
		*f = jsonFloat(math.Inf(1))
		return nil
	case "-Infinity", `"-Infinity"`:
		*f = jsonFloat(math.Inf(-1))
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return malformedf("expected number, got %q", string(b))
	}
	*f = jsonFloat(v)
	return nil
}

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// quoteNonFinite rewrites bare NaN/Infinity tokens to their quoted forms
// so the standard scanner accepts the payload. Tokens inside string
// literals are left alone.
func quoteNonFinite(data []byte) []byte {
	if !bytes.Contains(data, []byte("NaN")) && !bytes.Contains(data, []byte("Infinity")) {
		return data
	}

	out := make([]byte, 0, len(data)+16)
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(data) {
				i++
				out = append(out, data[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == 'N' && bytes.HasPrefix(data[i:], []byte("NaN")):
			out = append(out, `"NaN"`...)
			i += 2
		case c == '-' && bytes.HasPrefix(data[i:], []byte("-Infinity")):
			out = append(out, `"-Infinity"`...)
			i += 8
		case c == 'I' && bytes.HasPrefix(data[i:], []byte("Infinity")):
			out = append(out, `"Infinity"`...)
			i += 7
		default:
			out = append(out, c)
		}
	}
	return out
}

// wireVec is a [x, y, z] JSON array. Exactly three elements are required;
// a short array is a truncated payload, not a zero-filled one.
type wireVec [3]jsonFloat

func (v *wireVec) UnmarshalJSON(b []byte) error {
	var elems []jsonFloat
	if err := json.Unmarshal(b, &elems); err != nil {
		return malformedf("expected [x,y,z] array: %v", err)
	}
	if len(elems) != 3 {
		return malformedf("expected 3 coordinates, got %d", len(elems))
	}
	copy(v[:], elems)
	return nil
}

func vecFromPosition(p geom.Position) wireVec {
	return wireVec{jsonFloat(p.X), jsonFloat(p.Y), jsonFloat(p.Z)}
}

func (v wireVec) position() geom.Position {
	return geom.Position{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}
