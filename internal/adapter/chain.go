package adapter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy extracts one value from in. ok is false when nothing usable was found.
type Strategy[In, Out any] func(in In) (out Out, ok bool)

// Chain is an ordered list of strategies; the first one that succeeds wins.
type Chain[In, Out any] []Strategy[In, Out]

// Resolve runs the strategies in order.
func (c Chain[In, Out]) Resolve(in In) (Out, bool) {
	for _, s := range c {
		if out, ok := s(in); ok {
			return out, true
		}
	}
	var zero Out
	return zero, false
}

// Value is Resolve without the found flag.
func (c Chain[In, Out]) Value(in In) Out {
	out, _ := c.Resolve(in)
	return out
}

type (
	htmlField = Chain[*goquery.Selection, string]
	jsonField = Chain[any, string]
	jsonList  = Chain[any, []any]
)

// attr reads attribute name from the first element under css carrying a non-empty value.
// An empty css reads the scope element itself.
func attr(css, name string) Strategy[*goquery.Selection, string] {
	return func(scope *goquery.Selection) (string, bool) {
		sel := scope
		if css != "" {
			sel = scope.Find(css)
		}
		var out string
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr(name); ok {
				out = strings.TrimSpace(v)
			}
			return out == ""
		})
		return out, out != ""
	}
}

// text reads the whitespace-collapsed text of the first element under css that has any.
func text(css string) Strategy[*goquery.Selection, string] {
	return func(scope *goquery.Selection) (string, bool) {
		sel := scope
		if css != "" {
			sel = scope.Find(css)
		}
		var out string
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = collapseSpace(s.Text())
			return out == ""
		})
		return out, out != ""
	}
}

// elements matches the record containers of a listing page.
func elements(css string) Strategy[*goquery.Selection, *goquery.Selection] {
	return func(scope *goquery.Selection) (*goquery.Selection, bool) {
		sel := scope.Find(css)
		return sel, sel.Length() > 0
	}
}

// pathField reads a scalar at a dotted JSON path.
func pathField(p string) Strategy[any, string] {
	return func(doc any) (string, bool) {
		v, ok := lookup(doc, p)
		if !ok {
			return "", false
		}
		s := scalarString(v)
		return s, s != ""
	}
}

// listAt reads an array at a dotted JSON path. An empty array still counts as found so an
// exhausted page is told apart from an unknown layout.
func listAt(p string) Strategy[any, []any] {
	return func(doc any) ([]any, bool) {
		v, ok := lookup(doc, p)
		if !ok {
			return nil, false
		}
		list, ok := v.([]any)
		return list, ok
	}
}

func htmlFields(strategies ...Strategy[*goquery.Selection, string]) htmlField {
	return strategies
}

// jsonPaths builds a field chain over alternative paths.
func jsonPaths(paths ...string) jsonField {
	chain := make(jsonField, 0, len(paths))
	for _, p := range paths {
		chain = append(chain, pathField(p))
	}
	return chain
}

// prefixed expands each path under every prefix, prefixes first.
func prefixed(prefixes []string, paths ...string) []string {
	out := make([]string, 0, len(prefixes)*len(paths))
	for _, pre := range prefixes {
		for _, p := range paths {
			out = append(out, pre+p)
		}
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
