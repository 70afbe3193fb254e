package aggregation

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
)

type decoder func(body document.Value) (Stage, error)

var decoders map[string]decoder

func init() {
	decoders = map[string]decoder{
		"$match":           decodeMatch,
		"$group":           decodeGroup,
		"$sort":            decodeSort,
		"$limit":           decodeLimit,
		"$skip":            decodeSkip,
		"$project":         decodeProject,
		"$unwind":          decodeUnwind,
		"$lookup":          decodeLookup,
		"$addFields":       decodeAddFields("$addFields"),
		"$set":             decodeAddFields("$set"),
		"$unset":           decodeUnset,
		"$out":             decodeOut,
		"$count":           decodeCount,
		"$facet":           decodeFacet,
		"$bucket":          decodeBucket,
		"$merge":           decodeMerge,
		"$sample":          decodeSample,
		"$geoNear":         decodeGeoNear,
		"$replaceRoot":     decodeReplaceRoot,
		"$replaceWith":     decodeReplaceWith,
		"$redact":          decodeRedact,
		"$setWindowFields": decodeSetWindowFields,
	}
}

// Parse decodes and validates every stage before any of them runs.
func Parse(stages []*document.Document) (*Pipeline, error) {
	return parse(stages, false)
}

// ParseValue decodes a pipeline given as an array value.
func ParseValue(v document.Value) (*Pipeline, error) {
	docs, err := stageDocs(v)
	if err != nil {
		return nil, &domain.StageError{Index: 0, Stage: "pipeline", Err: err}
	}
	return Parse(docs)
}

func stageDocs(v document.Value) ([]*document.Document, error) {
	if v.Kind() != document.KindArray {
		return nil, stageErr("pipeline must be an array")
	}
	out := make([]*document.Document, len(v.ArrayValue()))
	for i, e := range v.ArrayValue() {
		if e.Kind() != document.KindDocument {
			return nil, stageErr("stage %d must be an object", i)
		}
		out[i] = e.DocumentValue()
	}
	return out, nil
}

func parse(docs []*document.Document, nested bool) (*Pipeline, error) {
	p := &Pipeline{stages: make([]Stage, 0, len(docs))}
	for i, d := range docs {
		if d.Len() != 1 {
			return nil, &domain.StageError{Index: i, Stage: "", Err: stageErr("a stage must have exactly one key, got %d", d.Len())}
		}
		f := d.Fields()[0]
		dec, ok := decoders[f.Key]
		if !ok {
			return nil, &domain.StageError{Index: i, Stage: f.Key, Err: fmt.Errorf("%s: %w", f.Key, domain.ErrUnknownStage)}
		}
		st, err := dec(f.Value)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidStageSpec) {
				err = fmt.Errorf("%w: %w", domain.ErrInvalidStageSpec, err)
			}
			return nil, &domain.StageError{Index: i, Stage: f.Key, Err: err}
		}
		if err := checkPosition(st, i, len(docs), nested); err != nil {
			return nil, &domain.StageError{Index: i, Stage: f.Key, Err: err}
		}
		p.stages = append(p.stages, st)
	}
	return p, nil
}

func checkPosition(st Stage, i, n int, nested bool) error {
	switch s := st.(type) {
	case *Out, *Merge:
		if nested {
			return stageErr("%s is not allowed inside $facet", st.Name())
		}
		if i != n-1 {
			return stageErr("%s must be the last stage", st.Name())
		}
	case *Facet:
		if nested {
			return stageErr("$facet is not allowed inside $facet")
		}
	case *GeoNear:
		if nested || i != 0 {
			return stageErr("$geoNear must be the first stage")
		}
	case *Match:
		if s.filter.Text() != nil && (nested || i != 0) {
			return stageErr("$match with $text must be the first stage")
		}
		if s.filter.Near() != nil {
			return stageErr("$near is not allowed in $match, use $geoNear")
		}
	}
	return nil
}
