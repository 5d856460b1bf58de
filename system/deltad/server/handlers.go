package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
)

func writeMsgpack(w http.ResponseWriter, status int, v any) {
	d, err := msgpack.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", patch.ContentType)
	w.WriteHeader(status)
	w.Write(d)
}

func writeError(w http.ResponseWriter, status int, err *api.Error) {
	writeMsgpack(w, status, err)
}

// statusFor maps an error to its response status and body.
func statusFor(err error) (int, *api.Error) {
	var ae *api.Error
	if !errors.As(err, &ae) {
		ae = api.NewError(api.ErrCodeInternal, err.Error())
	}
	switch {
	case errors.Is(err, api.ErrMalformedId),
		errors.Is(err, api.ErrMalformedVersion),
		errors.Is(err, api.ErrInvalidDescription),
		errors.Is(err, api.ErrBadRequest):
		return http.StatusBadRequest, ae
	case errors.Is(err, api.ErrBadPatch):
		return http.StatusConflict, ae
	case errors.Is(err, api.ErrNotConnected):
		return http.StatusUnauthorized, ae
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound, ae
	}
	return http.StatusInternalServerError, ae
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, ae := statusFor(err)
	if status >= 500 {
		s.Spec.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.Spec.Log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, ae)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	d, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPatchSize))
	if err != nil {
		return nil, api.Errorf(api.ErrCodeBadRequest, "read body: %v", err)
	}
	return d, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	d, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(d, v); err != nil {
		return api.Errorf(api.ErrCodeBadRequest, "decode body: %v", err)
	}
	return nil
}

func datasetId(r *http.Request) (api.Id, error) {
	return api.ParseId(r.PathValue("id"))
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMsgpack(w, http.StatusOK, &api.PingResponse{Now: time.Now().UnixMilli()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req := &api.RegisterRequest{}
	if err := decodeBody(w, r, req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Client.IsNil() {
		s.fail(w, r, api.NewError(api.ErrCodeMalformedId, "nil client id"))
		return
	}
	if err := s.register(r.Context(), req.Client); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMsgpack(w, http.StatusOK, req)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	l, err := s.linkFor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if l != s.anon {
		s.deregister(r.Context(), l.ClientId())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	descs, err := s.reader.Descriptions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMsgpack(w, http.StatusOK, &api.ListResponse{Datasets: descs})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	l, err := s.linkFor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req := &api.CreateRequest{}
	if err := decodeBody(w, r, req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := l.NewDataSource(r.Context(), req.Name, req.URI)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMsgpack(w, http.StatusCreated, &api.CreateResponse{Id: id})
}

func (s *Server) handleDescribeURI(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.fail(w, r, api.NewError(api.ErrCodeBadRequest, "uri parameter is required"))
		return
	}
	desc, err := s.reader.GetDescriptionByURI(r.Context(), uri)
	s.writeDescription(w, r, desc, err, uri)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	id, err := datasetId(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	desc, err := s.reader.GetDescription(r.Context(), id)
	s.writeDescription(w, r, desc, err, id.String())
}

func (s *Server) writeDescription(w http.ResponseWriter, r *http.Request, desc *api.DataSourceDescription, err error, ref string) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if desc == nil {
		s.fail(w, r, api.Errorf(api.ErrCodeNotFound, "no data source %s", ref))
		return
	}
	writeMsgpack(w, http.StatusOK, desc)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	l, err := s.linkFor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := datasetId(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := l.RemoveDataSource(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	id, err := datasetId(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.reader.GetCurrentVersion(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMsgpack(w, http.StatusOK, &api.VersionResponse{Version: v})
}

// handleFetch serves a patch by version number or by patch id.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := datasetId(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ref := r.PathValue("ref")
	var p *patch.Patch
	if v, verr := api.ParseVersion(ref); verr == nil {
		p, err = s.reader.FetchVersion(r.Context(), id, v)
	} else {
		pid, perr := api.ParseId(ref)
		if perr != nil {
			s.fail(w, r, api.Errorf(api.ErrCodeBadRequest, "patch ref %q is neither a version nor an id", ref))
			return
		}
		p, err = s.reader.FetchId(r.Context(), id, pid)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, api.Errorf(api.ErrCodeNoPatch, "no patch %s in %s", ref, id))
		return
	}
	d, err := patch.Marshal(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", patch.ContentType)
	w.Write(d)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	l, err := s.linkFor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := datasetId(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := patch.Unmarshal(d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := l.SendPatch(r.Context(), id, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeMsgpack(w, http.StatusOK, &api.VersionResponse{Version: v})
}
