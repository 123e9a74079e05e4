package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// decodeJSON parses body keeping numbers exact so large ids survive.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode json: %w", ingest.ErrContentNotReady, err)
	}
	return doc, nil
}

// lookup walks a dotted path through objects and arrays. The empty path is the document
// itself. Null values count as missing.
func lookup(doc any, p string) (any, bool) {
	cur := doc
	if p != "" {
		for _, seg := range strings.Split(p, ".") {
			switch node := cur.(type) {
			case map[string]any:
				next, ok := node[seg]
				if !ok {
					return nil, false
				}
				cur = next
			case []any:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= len(node) {
					return nil, false
				}
				cur = node[i]
			default:
				return nil, false
			}
		}
	}
	return cur, cur != nil
}

// scalarString renders strings and numbers; anything else is empty.
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// jsonObject returns the first object found at paths.
func jsonObject(doc any, paths ...string) (map[string]any, bool) {
	for _, p := range paths {
		if v, ok := lookup(doc, p); ok {
			if obj, ok := v.(map[string]any); ok {
				return obj, true
			}
		}
	}
	return nil, false
}
