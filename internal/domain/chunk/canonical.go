package chunk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field maps a JSON key to the label it is rendered under.
type Field struct {
	Key   string
	Label string
}

// ParseField reads "key" or "key:Label". A bare key is its own label.
func ParseField(s string) Field {
	key, label, ok := strings.Cut(s, ":")
	key = strings.TrimSpace(key)
	if !ok || strings.TrimSpace(label) == "" {
		return Field{Key: key, Label: key}
	}
	return Field{Key: key, Label: strings.TrimSpace(label)}
}

// Canonical renders a structured record as "Label: value" lines.
// Lines follow fields; with no fields, the object's keys in sorted order.
// Strings render raw, missing keys render empty, everything else renders as compact JSON.
func Canonical(fields []Field, obj map[string]any) string {
	if len(fields) == 0 {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields = make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = Field{Key: k, Label: k}
		}
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(renderValue(obj[f.Key]))
	}
	return b.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
