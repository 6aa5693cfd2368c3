package prismic

import (
	"strconv"
	"strings"
)

// Predicate is one q= filter of a search request, e.g.
// [[at(document.type, "sketchplanation")]].
type Predicate struct {
	Name  string
	Path  string
	Value string
}

// At matches documents whose path equals value exactly.
func At(path, value string) Predicate {
	return Predicate{Name: "at", Path: path, Value: value}
}

// Fulltext matches documents whose path contains every word of value.
func Fulltext(path, value string) Predicate {
	return Predicate{Name: "fulltext", Path: path, Value: value}
}

func (p Predicate) String() string {
	var b strings.Builder
	b.WriteString("[[")
	b.WriteString(p.Name)
	b.WriteString("(")
	b.WriteString(p.Path)
	b.WriteString(", ")
	b.WriteString(strconv.Quote(p.Value))
	b.WriteString(")]]")
	return b.String()
}

// Query describes a documents/search request.
type Query struct {
	Predicates []Predicate
	PageSize   int
	Page       int
	Orderings  string
	// Ref overrides the master ref, e.g. with a preview token.
	Ref string
}
