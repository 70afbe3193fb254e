package aggregation

import (
	"context"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain/document"
)

// Unwind emits one document per element of an array field.
type Unwind struct {
	path       string
	indexField string
	preserve   bool
}

func decodeUnwind(body document.Value) (Stage, error) {
	u := &Unwind{}
	switch body.Kind() {
	case document.KindString:
		u.path = body.StringValue()
	case document.KindDocument:
		for _, f := range body.DocumentValue().Fields() {
			switch f.Key {
			case "path":
				if f.Value.Kind() != document.KindString {
					return nil, stageErr("$unwind path must be a string")
				}
				u.path = f.Value.StringValue()
			case "includeArrayIndex":
				if f.Value.Kind() != document.KindString || f.Value.StringValue() == "" ||
					strings.HasPrefix(f.Value.StringValue(), "$") {
					return nil, stageErr("$unwind includeArrayIndex must be a field name")
				}
				u.indexField = f.Value.StringValue()
			case "preserveNullAndEmptyArrays":
				if f.Value.Kind() != document.KindBool {
					return nil, stageErr("$unwind preserveNullAndEmptyArrays must be a boolean")
				}
				u.preserve = f.Value.BoolValue()
			default:
				return nil, stageErr("$unwind: unknown option %q", f.Key)
			}
		}
	default:
		return nil, stageErr("$unwind takes a field path or an object")
	}
	if !strings.HasPrefix(u.path, "$") {
		return nil, stageErr("$unwind path must start with $")
	}
	u.path = u.path[1:]
	if err := document.ValidatePath(u.path); err != nil {
		return nil, err
	}
	return u, nil
}

// Name implements Stage.
func (*Unwind) Name() string { return "$unwind" }

func (u *Unwind) run(_ context.Context, _ *runtime, in Stream) Stream {
	return func(yield func(*document.Document, error) bool) {
		for d, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			v, ok := d.GetPath(u.path)
			switch {
			case ok && v.Kind() == document.KindArray && len(v.ArrayValue()) > 0:
				for i, e := range v.ArrayValue() {
					out := d.Clone()
					if err := out.SetPath(u.path, e.Clone()); err != nil {
						yield(nil, err)
						return
					}
					if !yield(u.withIndex(out, document.Int(int64(i))), nil) {
						return
					}
				}
				continue
			case ok && !v.IsNull() && v.Kind() != document.KindArray:
				if !yield(u.withIndex(d.Clone(), document.Null()), nil) {
					return
				}
				continue
			}
			if u.preserve && !yield(u.withIndex(d.Clone(), document.Null()), nil) {
				return
			}
		}
	}
}

func (u *Unwind) withIndex(d *document.Document, idx document.Value) *document.Document {
	if u.indexField != "" {
		_ = d.SetPath(u.indexField, idx)
	}
	return d
}
