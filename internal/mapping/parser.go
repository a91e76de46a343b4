package mapping

import (
	"errors"
	"strings"

	"github.com/xxxsen/apisync/internal/model"
)

var (
	errMissingBundle = errors.New("reference mapping needs a [bundle] clause")
	errEmptyBundle   = errors.New("reference mapping has an empty bundle clause")
	errEmptySource   = errors.New("reference mapping has an empty source path")
)

func Parse(kind Kind, text string) Table {
	table := Table{Kind: kind}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		entry, lerr := parseLine(kind, i+1, line)
		if lerr != nil {
			table.Errors = append(table.Errors, lerr)
			continue
		}
		table.Entries = append(table.Entries, entry)
	}
	return table
}

func parseLine(kind Kind, lineNo int, line string) (Entry, *LineError) {
	fail := func(reason string) (Entry, *LineError) {
		return Entry{}, &LineError{Kind: kind, Line: lineNo, Text: line, Reason: reason}
	}
	source, target, ok := strings.Cut(line, "|")
	if !ok {
		return fail("missing '|' separator")
	}
	source = strings.TrimSpace(source)
	target = strings.TrimSpace(target)
	if target == "" {
		return fail("empty target attribute")
	}
	entry := Entry{Line: lineNo, Target: target}
	switch kind {
	case KindGeolocation:
		lat, lng, ok := strings.Cut(source, "+")
		lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
		if !ok || lat == "" || lng == "" {
			return fail("geolocation source must be lat+lng")
		}
		entry.Lat, entry.Lng = lat, lng
	case KindReference:
		entry.Source, entry.Bundle, entry.Err = splitBundle(source)
	default:
		if source == "" {
			return fail("empty source path")
		}
		entry.Source = source
	}
	return entry, nil
}

func splitBundle(source string) (string, string, error) {
	open := strings.LastIndex(source, "[")
	if open < 0 || !strings.HasSuffix(source, "]") {
		return source, "", errMissingBundle
	}
	bundle := strings.TrimSpace(source[open+1 : len(source)-1])
	path := strings.TrimSpace(source[:open])
	if bundle == "" {
		return path, "", errEmptyBundle
	}
	if path == "" {
		return path, bundle, errEmptySource
	}
	return path, bundle, nil
}

// FromJob parses every mapping text configured on the job.
func FromJob(job *model.Job) Set {
	texts := map[Kind]string{
		KindText:        job.TextMap,
		KindRichText:    job.RichTextMap,
		KindList:        job.ListMap,
		KindReference:   job.ReferenceMap,
		KindImage:       job.ImageMap,
		KindDate:        job.DateMap,
		KindInteger:     job.IntegerMap,
		KindGeolocation: job.GeoMap,
	}
	set := Set{tables: make(map[Kind]Table, len(texts))}
	for kind, text := range texts {
		set.tables[kind] = Parse(kind, text)
	}
	return set
}
