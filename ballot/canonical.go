package ballot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const canonicalIndent = "  "

type jsonMember struct {
	Key   string
	Value interface{}
}

// jsonObject keeps members in the order their keys first appeared.
type jsonObject []jsonMember

// parseOrdered decodes a single JSON value, keeping object key order. Values
// are nil, bool, string, json.Number, jsonObject or []interface{}.
func parseOrdered(data []byte) (interface{}, error) {
	if err := rejectLoneSurrogates(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// rejectLoneSurrogates fails on \uD800-\uDFFF escapes that are not a
// high-low pair. encoding/json decodes those to U+FFFD while JavaScript keeps
// and re-escapes them, so their hashes could never match.
func rejectLoneSurrogates(data []byte) error {
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			continue
		}
		if data[i+1] != 'u' {
			i++
			continue
		}
		r, ok := escapedUnit(data[i+2:])
		if !ok {
			i++
			continue
		}
		switch {
		case r >= 0xD800 && r < 0xDC00:
			if i+12 <= len(data) && data[i+6] == '\\' && data[i+7] == 'u' {
				if lo, ok := escapedUnit(data[i+8:]); ok && lo >= 0xDC00 && lo < 0xE000 {
					i += 11
					continue
				}
			}
			return fmt.Errorf("unpaired surrogate escape at offset %d", i)
		case r >= 0xDC00 && r < 0xE000:
			return fmt.Errorf("unpaired surrogate escape at offset %d", i)
		}
		i += 5
	}
	return nil
}

func escapedUnit(b []byte) (rune, bool) {
	if len(b) < 4 {
		return 0, false
	}
	n, err := strconv.ParseUint(string(b[:4]), 16, 16)
	return rune(n), err == nil
}

func readValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); ok {
		switch d {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		}
		return nil, fmt.Errorf("unexpected delimiter %q", d)
	}
	return tok, nil
}

func readObject(dec *json.Decoder) (jsonObject, error) {
	obj := jsonObject{}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T", tok)
		}
		val, err := readValue(dec)
		if err != nil {
			return nil, err
		}
		// A repeated key keeps its first position and takes the last value.
		if i, dup := seen[key]; dup {
			obj[i].Value = val
			continue
		}
		seen[key] = len(obj)
		obj = append(obj, jsonMember{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func readArray(dec *json.Decoder) ([]interface{}, error) {
	arr := []interface{}{}
	for dec.More() {
		v, err := readValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

// writeCanonical renders v the way JSON.stringify(v, null, 2) does.
func writeCanonical(buf *bytes.Buffer, v interface{}, indent string) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		writeQuoted(buf, t)
	case json.Number:
		s, err := formatNumber(t)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case jsonObject:
		if len(t) == 0 {
			buf.WriteString("{}")
			return nil
		}
		inner := indent + canonicalIndent
		buf.WriteString("{\n")
		for i, m := range enumerationOrder(t) {
			if i > 0 {
				buf.WriteString(",\n")
			}
			buf.WriteString(inner)
			writeQuoted(buf, m.Key)
			buf.WriteString(": ")
			if err := writeCanonical(buf, m.Value, inner); err != nil {
				return err
			}
		}
		buf.WriteString("\n" + indent + "}")
	case []interface{}:
		if len(t) == 0 {
			buf.WriteString("[]")
			return nil
		}
		inner := indent + canonicalIndent
		buf.WriteString("[\n")
		for i, e := range t {
			if i > 0 {
				buf.WriteString(",\n")
			}
			buf.WriteString(inner)
			if err := writeCanonical(buf, e, inner); err != nil {
				return err
			}
		}
		buf.WriteString("\n" + indent + "]")
	default:
		return fmt.Errorf("unsupported JSON value %T", v)
	}
	return nil
}

// enumerationOrder puts array-index keys first in ascending numeric order,
// then the remaining keys in insertion order.
func enumerationOrder(obj jsonObject) jsonObject {
	var indexed, named jsonObject
	for _, m := range obj {
		if isArrayIndex(m.Key) {
			indexed = append(indexed, m)
		} else {
			named = append(named, m)
		}
	}
	if len(indexed) == 0 {
		return obj
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		a, _ := strconv.ParseUint(indexed[i].Key, 10, 32)
		b, _ := strconv.ParseUint(indexed[j].Key, 10, 32)
		return a < b
	})
	return append(indexed, named...)
}

func isArrayIndex(key string) bool {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return false
		}
	}
	n, err := strconv.ParseUint(key, 10, 32)
	return err == nil && n < math.MaxUint32
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
				continue
			}
			var enc [utf8.UTFMax]byte
			n := utf8.EncodeRune(enc[:], r)
			buf.Write(enc[:n])
		}
	}
	buf.WriteByte('"')
}

// formatNumber renders n as a JavaScript Number would print it.
func formatNumber(n json.Number) (string, error) {
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return "", err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null", nil
	}
	if f == 0 {
		return "0", nil
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0"), nil
}
