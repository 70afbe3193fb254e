package collection

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/kailas-cloud/docdex/internal/catalog"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	docrepo "github.com/kailas-cloud/docdex/internal/repository/document"
)

// metaRow is the JSON-serializable representation of collection metadata.
type metaRow struct {
	Name      string     `json:"name"`
	Capped    *cappedRow `json:"capped,omitempty"`
	Validator *validRow  `json:"validator,omitempty"`
	CreatedAt int64      `json:"created_at"`
	Revision  int        `json:"revision"`
	Indexes   []indexRow `json:"indexes,omitempty"`
}

type cappedRow struct {
	Size int64 `json:"size"`
	Max  int64 `json:"max,omitempty"`
}

type validRow struct {
	Rules  json.RawMessage `json:"rules"`
	Action string          `json:"action"`
	Level  string          `json:"level"`
}

type indexRow struct {
	Name    string          `json:"name"`
	Keys    []keyRow        `json:"keys"`
	Unique  bool            `json:"unique,omitempty"`
	Sparse  bool            `json:"sparse,omitempty"`
	Partial json.RawMessage `json:"partial,omitempty"`
}

type keyRow struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// encodeMeta converts collection metadata to its stored form.
func encodeMeta(m catalog.Metadata) ([]byte, error) {
	col := m.Collection
	row := metaRow{
		Name:      col.Name(),
		CreatedAt: col.CreatedAt(),
		Revision:  col.Revision(),
	}
	if c := col.Capped(); c != nil {
		row.Capped = &cappedRow{Size: c.Size, Max: c.Max}
	}
	if v := col.Validator(); v != nil {
		rules, err := docrepo.MarshalDocument(v.Rules)
		if err != nil {
			return nil, fmt.Errorf("marshal validator: %w", err)
		}
		row.Validator = &validRow{Rules: rules, Action: string(v.Action), Level: string(v.Level)}
	}
	for _, s := range m.Indexes {
		ir := indexRow{Name: s.Name(), Unique: s.Unique(), Sparse: s.Sparse()}
		for _, k := range s.Keys() {
			ir.Keys = append(ir.Keys, keyRow{Path: k.Path, Kind: string(k.Kind)})
		}
		partial, err := docrepo.MarshalDocument(s.Partial())
		if err != nil {
			return nil, fmt.Errorf("marshal partial filter of %s: %w", s.Name(), err)
		}
		ir.Partial = partial
		row.Indexes = append(row.Indexes, ir)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// decodeMeta hydrates collection metadata from its stored form.
func decodeMeta(data []byte) (catalog.Metadata, error) {
	var row metaRow
	if err := json.Unmarshal(data, &row); err != nil {
		return catalog.Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := domcol.ValidateName(row.Name); err != nil {
		return catalog.Metadata{}, err
	}

	var capped *domcol.Capped
	if row.Capped != nil {
		capped = &domcol.Capped{Size: row.Capped.Size, Max: row.Capped.Max}
	}
	var validator *domcol.Validator
	if row.Validator != nil {
		rules, err := docrepo.UnmarshalDocument(row.Validator.Rules)
		if err != nil {
			return catalog.Metadata{}, fmt.Errorf("validator of %s: %w", row.Name, err)
		}
		validator = &domcol.Validator{
			Rules:  rules,
			Action: domcol.Action(row.Validator.Action),
			Level:  domcol.Level(row.Validator.Level),
		}
	}

	revision := row.Revision
	if revision == 0 {
		revision = 1
	}
	meta := catalog.Metadata{
		Collection: domcol.Reconstruct(row.Name, capped, validator, row.CreatedAt, revision),
	}
	for _, ir := range row.Indexes {
		keys := make([]indexspec.Key, len(ir.Keys))
		for i, k := range ir.Keys {
			keys[i] = indexspec.Key{Path: k.Path, Kind: indexspec.Kind(k.Kind)}
		}
		partial, err := docrepo.UnmarshalDocument(ir.Partial)
		if err != nil {
			return catalog.Metadata{}, fmt.Errorf("index %s of %s: %w", ir.Name, row.Name, err)
		}
		spec, err := indexspec.New(keys, indexspec.Options{
			Name:    ir.Name,
			Unique:  ir.Unique,
			Sparse:  ir.Sparse,
			Partial: partial,
		})
		if err != nil {
			return catalog.Metadata{}, fmt.Errorf("index %s of %s: %w", ir.Name, row.Name, err)
		}
		meta.Indexes = append(meta.Indexes, spec)
	}
	return meta, nil
}
