package docdex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/docdex/internal/catalog"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
)

// Database is a set of named collections.
type Database struct {
	collSvc collectionUseCase
	docSvc  documentUseCase
	idxSvc  indexUseCase
	aggSvc  aggregateUseCase
	obs     *observer
}

// Collection returns a handle to a collection. The collection does not need
// to exist; writes create it.
func (d *Database) Collection(name string) *Collection {
	return &Collection{name: name, db: d}
}

// CreateCollection creates a collection explicitly, e.g. to make it capped
// or validated.
func (d *Database) CreateCollection(
	ctx context.Context, name string, opts ...CollectionOption,
) (_ CollectionInfo, err error) {
	start := time.Now()
	defer func() { d.obs.observe(name, "collection.create", start, err) }()

	cfg := &collectionConfig{}
	for _, o := range opts {
		o.applyCollection(cfg)
	}
	var internal domcol.Options
	if cfg.capped != nil {
		internal.Capped = &domcol.Capped{Size: cfg.capped.Size, Max: cfg.capped.Max}
	}
	if cfg.validator != nil {
		internal.Validator, err = toValidator(cfg.validator, cfg.validate)
		if err != nil {
			return CollectionInfo{}, fmt.Errorf("create collection: %w", err)
		}
	}

	col, err := d.collSvc.Create(ctx, name, internal)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("create collection: %w", err)
	}
	return fromInternalCollection(col), nil
}

// DropCollection removes a collection with its documents and indexes.
func (d *Database) DropCollection(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { d.obs.observe(name, "collection.drop", start, err) }()

	if err = d.collSvc.Drop(ctx, name); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	return nil
}

// ListCollections returns the collection names in sorted order.
func (d *Database) ListCollections(ctx context.Context) []string {
	return d.collSvc.List(ctx)
}

// CollectionInfo returns collection metadata.
func (d *Database) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	col, err := d.collSvc.Get(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection: %w", err)
	}
	return fromInternalCollection(col), nil
}

// SetValidator replaces the validator of a collection. A nil rules value
// removes it. Existing documents are not re-checked.
func (d *Database) SetValidator(ctx context.Context, name string, rules any, opts ...ValidatorOption) (err error) {
	start := time.Now()
	defer func() { d.obs.observe(name, "collection.set_validator", start, err) }()

	var v *domcol.Validator
	if rules != nil {
		var cfg validatorConfig
		for _, o := range opts {
			o(&cfg)
		}
		if v, err = toValidator(rules, cfg); err != nil {
			return fmt.Errorf("set validator: %w", err)
		}
	}
	if err = d.collSvc.SetValidator(ctx, name, v); err != nil {
		return fmt.Errorf("set validator: %w", err)
	}
	return nil
}

// Stats returns document count, data size and index sizes.
func (d *Database) Stats(ctx context.Context, name string) (CollectionStats, error) {
	st, err := d.collSvc.Stats(ctx, name)
	if err != nil {
		return CollectionStats{}, fmt.Errorf("collection stats: %w", err)
	}
	return fromInternalStats(st), nil
}

func toValidator(rules any, cfg validatorConfig) (*domcol.Validator, error) {
	doc, err := toDocument(rules)
	if err != nil {
		return nil, err
	}
	return domcol.NormalizeValidator(&domcol.Validator{
		Rules:  doc,
		Action: domcol.Action(cfg.action),
		Level:  domcol.Level(cfg.level),
	})
}

func fromInternalCollection(c domcol.Collection) CollectionInfo {
	info := CollectionInfo{
		Name:      c.Name(),
		Validated: c.Validator() != nil,
		CreatedAt: time.UnixMilli(c.CreatedAt()).UTC(),
		Revision:  c.Revision(),
	}
	if cp := c.Capped(); cp != nil {
		info.Capped = &CappedOptions{Size: cp.Size, Max: cp.Max}
	}
	return info
}

func fromInternalIndex(s indexspec.Spec) IndexInfo {
	keys := make(D, len(s.Keys()))
	for i, k := range s.Keys() {
		var v any = string(k.Kind)
		if dir := k.Direction(); dir != 0 {
			v = dir
		}
		keys[i] = E{Key: k.Path, Value: v}
	}
	return IndexInfo{
		Name:    s.Name(),
		Keys:    keys,
		Unique:  s.Unique(),
		Sparse:  s.Sparse(),
		Partial: fromDocument(s.Partial()),
	}
}

func fromInternalStats(st catalog.Stats) CollectionStats {
	out := CollectionStats{
		CollectionInfo: fromInternalCollection(st.Collection),
		Count:          st.Count,
		Size:           st.Size,
		Indexes:        make([]IndexStats, len(st.Indexes)),
	}
	for i, ix := range st.Indexes {
		out.Indexes[i] = IndexStats{IndexInfo: fromInternalIndex(ix.Spec), Entries: ix.Entries}
	}
	return out
}
