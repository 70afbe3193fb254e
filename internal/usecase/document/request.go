package document

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/aggregation"
	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
	"github.com/kailas-cloud/docdex/internal/domain/query/order"
)

// FindRequest is an unparsed find. Nil documents mean match all, natural
// order and no projection.
type FindRequest struct {
	Filter     *domdoc.Document
	Sort       *domdoc.Document
	Projection *domdoc.Document
	Skip       int
	Limit      int
}

func (r FindRequest) query() (catalog.Query, error) {
	if r.Skip < 0 || r.Limit < 0 {
		return catalog.Query{}, fmt.Errorf("skip and limit must not be negative: %w", domain.ErrInvalidSpec)
	}
	f, err := filter.Parse(r.Filter)
	if err != nil {
		return catalog.Query{}, fmt.Errorf("parse filter: %w", err)
	}
	s, err := order.Parse(r.Sort)
	if err != nil {
		return catalog.Query{}, fmt.Errorf("parse sort: %w", err)
	}
	q := catalog.Query{Filter: f, Sort: s, Skip: r.Skip, Limit: r.Limit}
	if r.Projection != nil && r.Projection.Len() > 0 {
		q.Projection, err = aggregation.ParseProjection(r.Projection)
		if err != nil {
			return catalog.Query{}, fmt.Errorf("parse projection: %w", err)
		}
	}
	return q, nil
}
