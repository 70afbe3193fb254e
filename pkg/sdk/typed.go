package docdex

import (
	"context"
	"fmt"
)

// Typed wraps a Collection and encodes/decodes T through docdex struct tags.
//
//	type User struct {
//		ID   string `docdex:"_id,omitempty"`
//		Name string `docdex:"name"`
//	}
//	users := docdex.NewTyped[User](db.Collection("users"))
type Typed[T any] struct {
	coll *Collection
}

// NewTyped returns a typed view over c.
func NewTyped[T any](c *Collection) *Typed[T] {
	return &Typed[T]{coll: c}
}

// Collection returns the untyped collection.
func (t *Typed[T]) Collection() *Collection { return t.coll }

// InsertOne stores v and returns its _id.
func (t *Typed[T]) InsertOne(ctx context.Context, v T) (any, error) {
	return t.coll.InsertOne(ctx, v)
}

// InsertMany stores values in order and stops at the first failure.
func (t *Typed[T]) InsertMany(ctx context.Context, vs []T) (InsertManyResult, error) {
	return t.coll.InsertMany(ctx, vs)
}

// FindByID returns the document with the given _id decoded into T.
func (t *Typed[T]) FindByID(ctx context.Context, id any) (T, error) {
	var out T
	d, err := t.coll.FindByID(ctx, id)
	if err != nil {
		return out, err
	}
	if err := Decode(d, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}

// ReplaceOne replaces the first document matching filter with v.
func (t *Typed[T]) ReplaceOne(ctx context.Context, filter any, v T) (UpdateResult, error) {
	return t.coll.ReplaceOne(ctx, filter, v)
}

// Count returns the number of documents matching filter.
func (t *Typed[T]) Count(ctx context.Context, filter any) (int, error) {
	return t.coll.Count(ctx, filter)
}

// Find starts a typed query.
func (t *Typed[T]) Find(filter any) *TypedQuery[T] {
	return &TypedQuery[T]{q: t.coll.Find(filter)}
}

// TypedQuery is a FindQuery that decodes results into T.
type TypedQuery[T any] struct {
	q *FindQuery
}

// Sort orders results.
func (tq *TypedQuery[T]) Sort(spec any) *TypedQuery[T] {
	tq.q.Sort(spec)
	return tq
}

// Project shapes results before decoding.
func (tq *TypedQuery[T]) Project(spec any) *TypedQuery[T] {
	tq.q.Project(spec)
	return tq
}

// Skip drops the first n results.
func (tq *TypedQuery[T]) Skip(n int) *TypedQuery[T] {
	tq.q.Skip(n)
	return tq
}

// Limit caps the result count.
func (tq *TypedQuery[T]) Limit(n int) *TypedQuery[T] {
	tq.q.Limit(n)
	return tq
}

// All runs the query and decodes every result.
func (tq *TypedQuery[T]) All(ctx context.Context) ([]T, error) {
	cur, err := tq.q.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []T
	for cur.Next() {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %T: %w", v, err)
		}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first result or ErrDocumentNotFound.
func (tq *TypedQuery[T]) First(ctx context.Context) (T, error) {
	var out T
	d, err := tq.q.First(ctx)
	if err != nil {
		return out, err
	}
	if err := Decode(d, &out); err != nil {
		return out, fmt.Errorf("decode %T: %w", out, err)
	}
	return out, nil
}
