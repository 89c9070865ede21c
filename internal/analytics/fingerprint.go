// Package analytics implements the audit data analytics engine: five
// deterministic analysis procedures over financial datasets, plus canonical
// dataset fingerprinting for reproducibility. Everything in this package is a
// pure function of its input: no I/O, no clock, no shared state.
package analytics

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint produces a deterministic hex digest identifying a structured
// value. Map keys are sorted recursively before encoding, so two inputs that
// differ only in key order hash identically; array order is preserved because
// it is semantically significant. The encoded form is hashed with SHA-256.
func Fingerprint(value any) (string, error) {
	norm, err := normalize(value)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, norm); err != nil {
		return "", err
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// normalize round-trips the value through JSON so typed structs, decoded
// request bodies, and plain maps all reduce to the same tree shape
// (map[string]any / []any / scalars). Numbers are kept as json.Number to
// preserve their textual form.
func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-encodable: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return out, nil
}

// encodeCanonical writes the canonical textual encoding of a normalized tree.
func encodeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")

	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case json.Number:
		buf.WriteString(v.String())

	case string:
		escaped, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(escaped)

	case []any:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			escaped, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(escaped)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	default:
		return fmt.Errorf("cannot canonically encode %T", value)
	}

	return nil
}
