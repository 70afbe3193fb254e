package chi

import (
	"github.com/goccy/go-json"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	domdoc "github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/planner"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
)

// ErrorCode is a machine-readable error category.
type ErrorCode string

// Error codes returned by the admin API.
const (
	ErrorCodeBadRequest    ErrorCode = "bad_request"
	ErrorCodeUnauthorized  ErrorCode = "unauthorized"
	ErrorCodeNotFound      ErrorCode = "not_found"
	ErrorCodeInvalidSpec   ErrorCode = "invalid_spec"
	ErrorCodeMissingIndex  ErrorCode = "missing_index"
	ErrorCodeInternalError ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      healthuc.Status                 `json:"status"`
	Checks      map[string]healthuc.CheckResult `json:"checks"`
	Collections int                             `json:"collections"`
}

// CappedResponse describes capped collection limits.
type CappedResponse struct {
	Size int64 `json:"size"`
	Max  int64 `json:"max,omitempty"`
}

// IndexResponse describes one index.
type IndexResponse struct {
	Name    string           `json:"name"`
	Key     *domdoc.Document `json:"key"`
	Unique  bool             `json:"unique,omitempty"`
	Sparse  bool             `json:"sparse,omitempty"`
	Partial *domdoc.Document `json:"partialFilterExpression,omitempty"`
	Entries *int             `json:"entries,omitempty"`
}

// CollectionStatsResponse describes one collection.
type CollectionStatsResponse struct {
	Name      string          `json:"name"`
	Count     int             `json:"count"`
	Size      int64           `json:"size"`
	Capped    *CappedResponse `json:"capped,omitempty"`
	Validated bool            `json:"validated"`
	Revision  int             `json:"revision"`
	Indexes   []IndexResponse `json:"indexes"`
}

// CollectionListResponse is the body of GET /v1/collections.
type CollectionListResponse struct {
	Items []CollectionStatsResponse `json:"items"`
}

// IndexListResponse is the body of GET /v1/collections/{name}/indexes.
type IndexListResponse struct {
	Items []IndexResponse `json:"items"`
}

// ExplainRequest is the body of POST /v1/collections/{name}/explain.
type ExplainRequest struct {
	Filter     json.RawMessage `json:"filter,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Skip       int             `json:"skip,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

func (r ExplainRequest) toFind() (documentuc.FindRequest, error) {
	out := documentuc.FindRequest{Skip: r.Skip, Limit: r.Limit}
	var err error
	if out.Filter, err = rawDocument(r.Filter); err != nil {
		return out, err
	}
	if out.Sort, err = rawDocument(r.Sort); err != nil {
		return out, err
	}
	if out.Projection, err = rawDocument(r.Projection); err != nil {
		return out, err
	}
	return out, nil
}

func rawDocument(raw json.RawMessage) (*domdoc.Document, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return domdoc.ParseJSON(raw)
}

func keyDocument(keys []indexspec.Key) *domdoc.Document {
	fields := make([]domdoc.Field, len(keys))
	for i, k := range keys {
		v := domdoc.String(string(k.Kind))
		if dir := k.Direction(); dir != 0 {
			v = domdoc.Int(int64(dir))
		}
		fields[i] = domdoc.Field{Key: k.Path, Value: v}
	}
	return domdoc.FromFields(fields...)
}

func indexToResponse(spec indexspec.Spec) IndexResponse {
	return IndexResponse{
		Name:    spec.Name(),
		Key:     keyDocument(spec.Keys()),
		Unique:  spec.Unique(),
		Sparse:  spec.Sparse(),
		Partial: spec.Partial(),
	}
}

func statsToResponse(st catalog.Stats) CollectionStatsResponse {
	resp := CollectionStatsResponse{
		Name:      st.Collection.Name(),
		Count:     st.Count,
		Size:      st.Size,
		Validated: st.Collection.Validator() != nil,
		Revision:  st.Collection.Revision(),
		Indexes:   make([]IndexResponse, len(st.Indexes)),
	}
	if c := st.Collection.Capped(); c != nil {
		resp.Capped = &CappedResponse{Size: c.Size, Max: c.Max}
	}
	for i, ix := range st.Indexes {
		ir := indexToResponse(ix.Spec)
		entries := ix.Entries
		ir.Entries = &entries
		resp.Indexes[i] = ir
	}
	return resp
}

// ExplainResponse wraps the chosen plan.
type ExplainResponse struct {
	Collection string        `json:"collection"`
	Plan       *planner.Plan `json:"plan"`
}
