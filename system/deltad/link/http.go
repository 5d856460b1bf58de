package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
)

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// HTTP is a Link to a remote server.
type HTTP struct {
	base string
	hc   *http.Client
	log  *slog.Logger

	mu     sync.RWMutex
	closed bool
	client api.Id
}

var _ Link = (*HTTP)(nil)

// NewHTTP returns a link to the server at base, e.g.
// "http://localhost:1066". If hc is nil, a client with DefaultTimeout is
// used; if log is nil, slog.Default().
func NewHTTP(base string, hc *http.Client, log *slog.Logger) (*HTTP, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: unsupported scheme %q", base, u.Scheme)
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTP{
		base: u.String(),
		hc:   hc,
		log:  log.With("component", "link", "server", u.Host),
	}, nil
}

// String returns the server url.
func (h *HTTP) String() string {
	return h.base
}

type request struct {
	method   string
	path     string // escaped
	query    url.Values
	body     any    // msgpack encoded unless raw is set
	raw      []byte // pre-encoded body
	mutating bool
}

// do sends req and returns the response body of a successful response.
func (h *HTTP) do(ctx context.Context, req *request) ([]byte, error) {
	h.mu.RLock()
	closed, client := h.closed, h.client
	h.mu.RUnlock()
	if closed {
		return nil, api.NewError(api.ErrCodeNotConnected, "link closed")
	}
	if req.mutating && client.IsNil() {
		return nil, api.NewError(api.ErrCodeNotConnected, "link not registered")
	}

	// req.path is already escaped
	target := h.base + req.path
	if req.query != nil {
		target += "?" + req.query.Encode()
	}
	body := req.raw
	if req.body != nil {
		d, err := msgpack.Marshal(req.body)
		if err != nil {
			return nil, err
		}
		body = d
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method, target, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		hreq.Header.Set("Content-Type", patch.ContentType)
	}
	hreq.Header.Set("Accept", patch.ContentType)
	if !client.IsNil() {
		hreq.Header.Set(api.ClientHeader, client.String())
	}

	op := req.method + " " + req.path
	resp, err := h.hc.Do(hreq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	d, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Err: decodeError(resp.StatusCode, d)}
	}
	return d, nil
}

func decodeError(status int, d []byte) *api.Error {
	e := &api.Error{}
	if err := msgpack.Unmarshal(d, e); err == nil && e.Code != "" {
		return e
	}
	return api.NewError(codeForStatus(status), strings.TrimSpace(string(d)))
}

// codeForStatus guesses an error code for responses without a body we
// understand, from proxies and the like.
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return api.ErrCodeNotFound
	case http.StatusUnauthorized:
		return api.ErrCodeNotConnected
	case http.StatusConflict:
		return api.ErrCodeBadPatch
	case http.StatusBadRequest:
		return api.ErrCodeBadRequest
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return api.ErrCodeTransient
	}
	return fmt.Sprintf("http_%d", status)
}

func decode(d []byte, v any) error {
	if err := msgpack.Unmarshal(d, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func datasetPath(ds api.Id, rest ...string) string {
	p := "/$/datasets/" + url.PathEscape(ds.String())
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (h *HTTP) Ping(ctx context.Context) error {
	d, err := h.do(ctx, &request{method: http.MethodGet, path: "/$/ping"})
	if err != nil {
		return err
	}
	return decode(d, &api.PingResponse{})
}

func (h *HTTP) Register(ctx context.Context, client api.Id) error {
	if client.IsNil() {
		return api.NewError(api.ErrCodeMalformedId, "nil client id")
	}
	_, err := h.do(ctx, &request{
		method: http.MethodPost,
		path:   "/$/register",
		body:   &api.RegisterRequest{Client: client},
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.client = client
	h.mu.Unlock()
	h.log.Debug("registered", "client", client.Short())
	return nil
}

func (h *HTTP) Deregister(ctx context.Context) error {
	_, err := h.do(ctx, &request{method: http.MethodPost, path: "/$/deregister", mutating: true})
	h.mu.Lock()
	h.client = api.Id{}
	h.mu.Unlock()
	if errors.Is(err, api.ErrNotConnected) {
		return nil
	}
	return err
}

func (h *HTTP) IsRegistered() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed && !h.client.IsNil()
}

func (h *HTTP) ClientId() api.Id {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *HTTP) NewDataSource(ctx context.Context, name, uri string) (api.Id, error) {
	d, err := h.do(ctx, &request{
		method:   http.MethodPost,
		path:     "/$/datasets",
		body:     &api.CreateRequest{Name: name, URI: uri},
		mutating: true,
	})
	if err != nil {
		return api.Id{}, err
	}
	resp := &api.CreateResponse{}
	if err := decode(d, resp); err != nil {
		return api.Id{}, err
	}
	return resp.Id, nil
}

func (h *HTTP) RemoveDataSource(ctx context.Context, ds api.Id) error {
	_, err := h.do(ctx, &request{method: http.MethodDelete, path: datasetPath(ds), mutating: true})
	return err
}

func (h *HTTP) ListDatasets(ctx context.Context) ([]api.Id, error) {
	descs, err := h.Descriptions(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]api.Id, len(descs))
	for i := range descs {
		res[i] = descs[i].Id
	}
	return res, nil
}

func (h *HTTP) Descriptions(ctx context.Context) ([]api.DataSourceDescription, error) {
	d, err := h.do(ctx, &request{method: http.MethodGet, path: "/$/datasets"})
	if err != nil {
		return nil, err
	}
	resp := &api.ListResponse{}
	if err := decode(d, resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

func (h *HTTP) GetDescription(ctx context.Context, ds api.Id) (*api.DataSourceDescription, error) {
	return h.describe(ctx, &request{method: http.MethodGet, path: datasetPath(ds)})
}

func (h *HTTP) GetDescriptionByURI(ctx context.Context, uri string) (*api.DataSourceDescription, error) {
	return h.describe(ctx, &request{method: http.MethodGet, path: "/$/describe", query: url.Values{"uri": {uri}}})
}

func (h *HTTP) describe(ctx context.Context, req *request) (*api.DataSourceDescription, error) {
	d, err := h.do(ctx, req)
	if errors.Is(err, api.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	desc := &api.DataSourceDescription{}
	if err := decode(d, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func (h *HTTP) SendPatch(ctx context.Context, ds api.Id, p *patch.Patch) (api.Version, error) {
	body, err := patch.Marshal(p)
	if err != nil {
		return api.Unset, err
	}
	d, err := h.do(ctx, &request{
		method:   http.MethodPost,
		path:     datasetPath(ds, "patch"),
		raw:      body,
		mutating: true,
	})
	if err != nil {
		return api.Unset, err
	}
	resp := &api.VersionResponse{}
	if err := decode(d, resp); err != nil {
		return api.Unset, err
	}
	return resp.Version, nil
}

func (h *HTTP) FetchVersion(ctx context.Context, ds api.Id, v api.Version) (*patch.Patch, error) {
	return h.fetch(ctx, ds, strconv.FormatInt(int64(v), 10))
}

func (h *HTTP) FetchId(ctx context.Context, ds api.Id, patchId api.Id) (*patch.Patch, error) {
	return h.fetch(ctx, ds, url.PathEscape(patchId.String()))
}

func (h *HTTP) fetch(ctx context.Context, ds api.Id, ref string) (*patch.Patch, error) {
	d, err := h.do(ctx, &request{method: http.MethodGet, path: datasetPath(ds, "patch", ref)})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Err.Code == api.ErrCodeNoPatch {
			return nil, nil
		}
		return nil, err
	}
	return patch.Unmarshal(d)
}

func (h *HTTP) GetCurrentVersion(ctx context.Context, ds api.Id) (api.Version, error) {
	d, err := h.do(ctx, &request{method: http.MethodGet, path: datasetPath(ds, "version")})
	if err != nil {
		return api.Unset, err
	}
	resp := &api.VersionResponse{}
	if err := decode(d, resp); err != nil {
		return api.Unset, err
	}
	return resp.Version, nil
}

// Close marks the link closed and releases idle connections.
func (h *HTTP) Close() error {
	h.mu.Lock()
	h.closed = true
	h.client = api.Id{}
	h.mu.Unlock()
	h.hc.CloseIdleConnections()
	return nil
}
