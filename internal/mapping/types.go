package mapping

import "fmt"

type Kind int

const (
	KindText Kind = iota
	KindRichText
	KindList
	KindReference
	KindImage
	KindDate
	KindInteger
	KindGeolocation
)

// ProjectionOrder is the order kinds are applied to a record. Later kinds
// overwrite earlier ones when they share a target attribute.
var ProjectionOrder = []Kind{
	KindText,
	KindRichText,
	KindList,
	KindReference,
	KindImage,
	KindDate,
	KindInteger,
	KindGeolocation,
}

var kindNames = map[Kind]string{
	KindText:        "text",
	KindRichText:    "rich_text",
	KindList:        "list",
	KindReference:   "reference",
	KindImage:       "image",
	KindDate:        "date",
	KindInteger:     "integer",
	KindGeolocation: "geolocation",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Entry struct {
	Line   int
	Source string
	Lat    string
	Lng    string
	Bundle string
	Target string
	// Err is set on reference entries whose bundle clause is malformed.
	Err error
}

type LineError struct {
	Kind   Kind
	Line   int
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s mapping line %d %q: %s", e.Kind, e.Line, e.Text, e.Reason)
}

type Table struct {
	Kind    Kind
	Entries []Entry
	Errors  []*LineError
}

type Set struct {
	tables map[Kind]Table
}

func (s Set) Table(kind Kind) Table {
	if t, ok := s.tables[kind]; ok {
		return t
	}
	return Table{Kind: kind}
}

func (s Set) LineErrors() []*LineError {
	var out []*LineError
	for _, kind := range ProjectionOrder {
		out = append(out, s.Table(kind).Errors...)
	}
	return out
}
