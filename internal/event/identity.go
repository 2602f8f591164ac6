package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// identityKeys is the lookup order for IdentityKey. Rows written by earlier
// deployments were keyed with this exact order.
var identityKeys = [...]string{KeyID, KeyEventID, KeyURL}

// IdentityKey returns the string form of the first present, truthy value among
// id, event_id and url. ok is false when none qualifies.
func IdentityKey(r Record) (key string, ok bool) {
	for _, k := range identityKeys {
		v, present := r[k]
		if !present || !truthy(v) {
			continue
		}
		return stringForm(v), true
	}
	return "", false
}

// Fingerprint returns the hex SHA-256 of the record's canonical serialization.
//
// The only error source is a value that has no JSON representation, which
// cannot happen for records decoded from JSON.
func Fingerprint(r Record) (string, error) {
	b, err := Canonical(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical serializes v with object keys sorted at every level.
//
// The layout is fixed: ", " between elements, ": " after keys, non-ASCII text
// written verbatim and only quote, backslash and control characters escaped.
// Numbers are rendered the way the first deployment rendered them (integers in
// decimal, floats in shortest repr with a trailing ".0" when integral).
func Canonical(v any) ([]byte, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		writeString(b, x)
	case json.Number:
		b.WriteString(numberForm(x))
	case float64:
		b.WriteString(floatForm(x))
	case float32:
		b.WriteString(floatForm(float64(x)))
	case int, int8, int16, int32, int64:
		b.WriteString(strconv.FormatInt(reflect.ValueOf(x).Int(), 10))
	case uint, uint8, uint16, uint32, uint64:
		b.WriteString(strconv.FormatUint(reflect.ValueOf(x).Uint(), 10))
	case Record:
		return writeObject(b, map[string]any(x))
	case map[string]any:
		return writeObject(b, x)
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeCanonical(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		// Typed Go values (structs, typed slices, time.Time, ...): take their
		// JSON form and canonicalize that.
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Errorf("event: canonical encode %T: %w", x, err)
		}
		generic, err := decodeJSON(raw)
		if err != nil {
			return fmt.Errorf("event: canonical encode %T: %w", x, err)
		}
		return writeCanonical(b, generic)
	}
	return nil
}

func writeObject(b *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Byte order of UTF-8 equals code point order.
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		writeString(b, k)
		b.WriteString(": ")
		if err := writeCanonical(b, m[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

// numberForm renders a JSON number literal the way it prints after a
// parse/print cycle through int or float.
func numberForm(n json.Number) string {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		// Arbitrary precision integer: JSON already forbids leading zeros.
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	return floatForm(f)
}

// floatForm is the shortest round-trip repr: positional for decimal exponents
// in [-4, 16), scientific otherwise, always with a fraction or exponent.
func floatForm(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp := 0
	if i := strings.IndexByte(sci, 'e'); i >= 0 {
		exp, _ = strconv.Atoi(sci[i+1:])
	}
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return x.String() != ""
		}
		return f != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int, int8, int16, int32, int64:
		return reflect.ValueOf(x).Int() != 0
	case uint, uint8, uint16, uint32, uint64:
		return reflect.ValueOf(x).Uint() != 0
	case map[string]any:
		return len(x) > 0
	case Record:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
			return rv.Len() > 0
		case reflect.Pointer, reflect.Interface:
			return !rv.IsNil()
		}
		return true
	}
}

// stringForm renders a truthy identity value the way the first deployment
// printed it: booleans as "True", collections in repr form ({'a': 'b'}).
// Decoded objects do not keep their key order, so object keys come out
// sorted.
func stringForm(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case json.Number:
		return reprSpecial(numberForm(x))
	case float64:
		return reprSpecial(floatForm(x))
	case float32:
		return reprSpecial(floatForm(float64(x)))
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(x).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(x).Uint(), 10)
	}
	var b strings.Builder
	writeRepr(&b, v)
	return b.String()
}

func writeRepr(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case string:
		writeReprString(b, x)
	case bool, json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		b.WriteString(stringForm(x))
	case Record:
		writeReprMap(b, x)
	case map[string]any:
		writeReprMap(b, x)
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, e)
		}
		b.WriteByte(']')
	default:
		fmt.Fprint(b, v)
	}
}

func writeReprMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		writeReprString(b, k)
		b.WriteString(": ")
		writeRepr(b, m[k])
	}
	b.WriteByte('}')
}

// reprSpecial maps the JSON spellings of non-finite floats to repr ones.
func reprSpecial(s string) string {
	switch s {
	case "NaN":
		return "nan"
	case "Infinity":
		return "inf"
	case "-Infinity":
		return "-inf"
	}
	return s
}

// writeReprString quotes s with single quotes unless s contains a single
// quote and no double quote. Non-printable runes are escaped.
func writeReprString(b *strings.Builder, s string) {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(b, `\u%04x`, r)
		default:
			fmt.Fprintf(b, `\U%08x`, r)
		}
	}
	b.WriteRune(quote)
}
