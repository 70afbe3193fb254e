package aggregation

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Merge policies for matched documents.
const (
	WhenMatchedMerge        = "merge"
	WhenMatchedReplace      = "replace"
	WhenMatchedKeepExisting = "keepExisting"
	WhenMatchedFail         = "fail"
)

// Merge policies for unmatched documents.
const (
	WhenNotMatchedInsert  = "insert"
	WhenNotMatchedDiscard = "discard"
	WhenNotMatchedFail    = "fail"
)

// MergeOptions control how $merge writes into its target.
type MergeOptions struct {
	// On lists the fields that identify a target document. Defaults to _id.
	On             []string
	WhenMatched    string
	WhenNotMatched string
}

// Out replaces the contents of a collection with the pipeline output.
type Out struct {
	target string
}

func decodeOut(body document.Value) (Stage, error) {
	switch body.Kind() {
	case document.KindString:
		if body.StringValue() == "" {
			return nil, stageErr("$out needs a collection name")
		}
		return &Out{target: body.StringValue()}, nil
	case document.KindDocument:
		c, ok := body.DocumentValue().Get("coll")
		if !ok || c.Kind() != document.KindString || c.StringValue() == "" {
			return nil, stageErr("$out needs a collection name")
		}
		return &Out{target: c.StringValue()}, nil
	}
	return nil, stageErr("$out takes a collection name")
}

// Name implements Stage.
func (*Out) Name() string { return "$out" }

// Target returns the written collection.
func (o *Out) Target() string { return o.target }

func (o *Out) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		docs, err := buffer(ctx, rt, in)
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = rt.env.ReplaceAll(ctx, o.target, docs)
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

// Merge upserts the pipeline output into a collection.
type Merge struct {
	target string
	opts   MergeOptions
}

func decodeMerge(body document.Value) (Stage, error) {
	m := &Merge{opts: MergeOptions{
		On:             []string{document.IDField},
		WhenMatched:    WhenMatchedMerge,
		WhenNotMatched: WhenNotMatchedInsert,
	}}
	switch body.Kind() {
	case document.KindString:
		m.target = body.StringValue()
	case document.KindDocument:
		for _, f := range body.DocumentValue().Fields() {
			if err := m.setOption(f); err != nil {
				return nil, err
			}
		}
	default:
		return nil, stageErr("$merge takes a collection name or an object")
	}
	if m.target == "" {
		return nil, stageErr("$merge needs a target collection")
	}
	return m, nil
}

func (m *Merge) setOption(f document.Field) error {
	switch f.Key {
	case "into":
		if f.Value.Kind() != document.KindString {
			return stageErr("$merge into must be a collection name")
		}
		m.target = f.Value.StringValue()
	case "on":
		on, err := mergeOn(f.Value)
		if err != nil {
			return err
		}
		m.opts.On = on
	case "whenMatched":
		switch s := f.Value.StringValue(); {
		case f.Value.Kind() == document.KindString &&
			(s == WhenMatchedMerge || s == WhenMatchedReplace || s == WhenMatchedKeepExisting || s == WhenMatchedFail):
			m.opts.WhenMatched = s
		default:
			return stageErr("$merge: unsupported whenMatched")
		}
	case "whenNotMatched":
		switch s := f.Value.StringValue(); {
		case f.Value.Kind() == document.KindString &&
			(s == WhenNotMatchedInsert || s == WhenNotMatchedDiscard || s == WhenNotMatchedFail):
			m.opts.WhenNotMatched = s
		default:
			return stageErr("$merge: unsupported whenNotMatched")
		}
	default:
		return stageErr("$merge: unknown option %q", f.Key)
	}
	return nil
}

func mergeOn(v document.Value) ([]string, error) {
	var names []document.Value
	switch v.Kind() {
	case document.KindString:
		names = []document.Value{v}
	case document.KindArray:
		names = v.ArrayValue()
	}
	if len(names) == 0 {
		return nil, stageErr("$merge on must be a field or an array of fields")
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n.Kind() != document.KindString || document.ValidatePath(n.StringValue()) != nil {
			return nil, stageErr("$merge on must be a field or an array of fields")
		}
		out = append(out, n.StringValue())
	}
	return out, nil
}

// Name implements Stage.
func (*Merge) Name() string { return "$merge" }

// Target returns the written collection.
func (m *Merge) Target() string { return m.target }

// Options returns the merge policy.
func (m *Merge) Options() MergeOptions { return m.opts }

func (m *Merge) run(ctx context.Context, rt *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		docs, err := buffer(ctx, rt, in)
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = rt.env.Merge(ctx, m.target, docs, m.opts)
		}
		if err != nil {
			yield(nil, err)
		}
	}
}
