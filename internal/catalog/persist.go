package catalog

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/store"
)

// Metadata is the persisted definition of a collection.
type Metadata struct {
	Collection collection.Collection
	// Indexes lists secondary indexes in creation order, without _id_.
	Indexes []indexspec.Spec
}

// Page is one persisted document with its insertion sequence.
type Page struct {
	Seq store.RowID
	Doc *document.Document
}

// Change is one atomic unit of persisted writes for a collection.
// Deletes are applied before puts.
type Change struct {
	Collection string
	// Meta is set when the collection definition changed.
	Meta *Metadata
	// Drop removes the collection and every page.
	Drop bool
	Put  []Page
	// Delete lists canonical id keys (document.KeyString) of removed pages.
	Delete []string
}

// Empty reports whether the change writes nothing.
func (c Change) Empty() bool {
	return c.Meta == nil && !c.Drop && len(c.Put) == 0 && len(c.Delete) == 0
}

// Snapshot is one collection as loaded at open.
type Snapshot struct {
	Meta  Metadata
	Pages []Page
}

// Persistence mirrors committed writes to durable storage.
type Persistence interface {
	Load(ctx context.Context) ([]Snapshot, error)
	Commit(ctx context.Context, c Change) error
}

type nopPersistence struct{}

func (nopPersistence) Load(context.Context) ([]Snapshot, error) { return nil, nil }
func (nopPersistence) Commit(context.Context, Change) error     { return nil }

// changeSet accumulates the writes of one unit. A later write to the same id
// supersedes an earlier one.
type changeSet struct {
	meta  *Metadata
	drop  bool
	pages map[string]*Page
	order []string
}

func (c *changeSet) put(row store.RowID, d *document.Document) {
	c.set(d.IDKey(), &Page{Seq: row, Doc: d})
}

func (c *changeSet) del(idKey string) {
	c.set(idKey, nil)
}

func (c *changeSet) set(key string, p *Page) {
	if c.pages == nil {
		c.pages = map[string]*Page{}
	}
	if _, ok := c.pages[key]; !ok {
		c.order = append(c.order, key)
	}
	c.pages[key] = p
}

func (c *changeSet) change(name string) Change {
	out := Change{Collection: name, Meta: c.meta, Drop: c.drop}
	for _, k := range c.order {
		if p := c.pages[k]; p != nil {
			out.Put = append(out.Put, *p)
		} else {
			out.Delete = append(out.Delete, k)
		}
	}
	return out
}

// undoLog reverts in-memory mutations of a failed unit in reverse order.
type undoLog struct {
	steps []func()
}

func (u *undoLog) push(f func()) { u.steps = append(u.steps, f) }

func (u *undoLog) rollback() {
	for i := len(u.steps) - 1; i >= 0; i-- {
		u.steps[i]()
	}
	u.steps = nil
}
