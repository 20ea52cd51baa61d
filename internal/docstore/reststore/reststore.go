// Package reststore implements docstore.Store against an Appwrite-shaped REST
// document API. The server mints document ids, so lookups by any other key go
// through Query. The REST API has no push channel; Subscribe reports
// docstore.ErrUnsupported.
package reststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/restcall"
	"github.com/valyala/fasthttp"
)

// APIError is a non-2xx answer from the document API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("document api error: status=%d body=%s", e.Status, e.Body)
}

type Store struct {
	endpoint   string
	project    string
	apiKey     string
	databaseID string
	aliases    map[string]string

	call *restcall.Caller
}

type Option func(*Store)

func WithAPIKey(key string) Option { return func(s *Store) { s.apiKey = strings.TrimSpace(key) } }

func WithTimeout(d time.Duration) Option { return func(s *Store) { s.call.Timeout = d } }

// WithRetry bounds attempts for reads and patches. Creates are never retried.
func WithRetry(max int) Option { return func(s *Store) { s.call.RetryMax = max } }

// WithCollection maps a logical collection name to the server's collection id.
func WithCollection(name, id string) Option {
	return func(s *Store) { s.aliases[name] = id }
}

func New(endpoint, project, databaseID string, opts ...Option) *Store {
	s := &Store{
		endpoint:   strings.TrimRight(endpoint, "/"),
		project:    strings.TrimSpace(project),
		databaseID: strings.TrimSpace(databaseID),
		aliases:    make(map[string]string),
		call:       restcall.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ docstore.Store = (*Store)(nil)

type createRequest struct {
	DocumentID string          `json:"documentId"`
	Data       docstore.Fields `json:"data"`
}

type updateRequest struct {
	Data docstore.Fields `json:"data"`
}

type listResponse struct {
	Total     int               `json:"total"`
	Documents []json.RawMessage `json:"documents"`
}

type query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute"`
	Values    []any  `json:"values"`
}

func (s *Store) documentsPath(collection string) string {
	col := collection
	if id, ok := s.aliases[collection]; ok {
		col = id
	}
	return "/databases/" + url.PathEscape(s.databaseID) + "/collections/" + url.PathEscape(col) + "/documents"
}

// Create ignores key: the REST backend keys rooms by a freshly minted id.
func (s *Store) Create(ctx context.Context, collection, _ string, fields docstore.Fields) (*docstore.Document, error) {
	f, err := docstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	req := createRequest{DocumentID: uuid.NewString(), Data: f}
	if err := s.doJSON(ctx, fasthttp.MethodPost, s.documentsPath(collection), req, &raw, false); err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	return decodeDocument(raw)
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw json.RawMessage
	path := s.documentsPath(collection) + "/" + url.PathEscape(id)
	if err := s.doJSON(ctx, fasthttp.MethodGet, path, nil, &raw, true); err != nil {
		return nil, wrapNotFound("get "+collection+"/"+id, err)
	}
	return decodeDocument(raw)
}

func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]*docstore.Document, error) {
	path := s.documentsPath(collection)
	if len(preds) > 0 {
		v := url.Values{}
		for _, p := range preds {
			q, err := json.Marshal(query{Method: "equal", Attribute: p.Field, Values: []any{p.Value}})
			if err != nil {
				return nil, err
			}
			v.Add("queries[]", string(q))
		}
		path += "?" + v.Encode()
	}
	var resp listResponse
	if err := s.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]*docstore.Document, 0, len(resp.Documents))
	for _, raw := range resp.Documents {
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		// servers ignoring unknown query attributes must not widen the result
		if docstore.Matches(doc.Fields, preds...) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	f, err := docstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	path := s.documentsPath(collection) + "/" + url.PathEscape(id)
	if err := s.doJSON(ctx, fasthttp.MethodPatch, path, updateRequest{Data: f}, &raw, true); err != nil {
		return nil, wrapNotFound("update "+collection+"/"+id, err)
	}
	return decodeDocument(raw)
}

func (s *Store) Subscribe(context.Context, string, string, func(*docstore.Document)) (func(), error) {
	return nil, docstore.ErrUnsupported
}

func (s *Store) SubscribeAll(context.Context, string, func(*docstore.Document)) (func(), error) {
	return nil, docstore.ErrUnsupported
}

func wrapNotFound(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == fasthttp.StatusNotFound {
		return docstore.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// decodeDocument splits "$"-prefixed system attributes from user fields.
func decodeDocument(raw []byte) (*docstore.Document, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	id, _ := m["$id"].(string)
	if id == "" {
		return nil, errors.New("decode document: missing $id")
	}
	f := docstore.Fields{}
	for k, v := range m {
		if strings.HasPrefix(k, "$") {
			continue
		}
		f[k] = v
	}
	return &docstore.Document{ID: id, Fields: f}, nil
}

func (s *Store) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	header := map[string]string{"X-Appwrite-Project": s.project, "X-Appwrite-Key": s.apiKey}
	err := s.call.JSON(ctx, method, s.endpoint+path, header, in, out, retry)
	var se *restcall.StatusError
	if errors.As(err, &se) {
		return &APIError{Status: se.Status, Body: string(se.Body)}
	}
	return err
}
