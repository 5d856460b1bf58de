package link

import (
	"context"
	"log/slog"
	"sync"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
	"github.com/signadot/deltalog/system/deltad/storage"
)

// Local is a Link to a Registry in the same process.
type Local struct {
	reg *storage.Registry
	log *slog.Logger

	mu     sync.RWMutex
	closed bool
	client api.Id
}

var _ Link = (*Local)(nil)

// NewLocal returns an open, unregistered link to reg. If log is nil,
// slog.Default() is used.
func NewLocal(reg *storage.Registry, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{reg: reg, log: log.With("component", "link")}
}

// checkLink fails if the link has been closed.
func (l *Local) checkLink() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return api.NewError(api.ErrCodeNotConnected, "link closed")
	}
	return nil
}

// checkRegistered fails unless the link is open and registered.
func (l *Local) checkRegistered() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return api.NewError(api.ErrCodeNotConnected, "link closed")
	}
	if l.client.IsNil() {
		return api.NewError(api.ErrCodeNotConnected, "link not registered")
	}
	return nil
}

func (l *Local) Ping(ctx context.Context) error {
	return l.checkLink()
}

func (l *Local) Register(ctx context.Context, client api.Id) error {
	if client.IsNil() {
		return api.NewError(api.ErrCodeMalformedId, "nil client id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return api.NewError(api.ErrCodeNotConnected, "link closed")
	}
	if !l.client.IsNil() && l.client != client {
		l.log.Info("re-register", "old", l.client.Short(), "new", client.Short())
	}
	l.client = client
	return nil
}

func (l *Local) Deregister(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return api.NewError(api.ErrCodeNotConnected, "link closed")
	}
	l.client = api.Id{}
	return nil
}

func (l *Local) IsRegistered() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed && !l.client.IsNil()
}

func (l *Local) ClientId() api.Id {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}

func (l *Local) NewDataSource(ctx context.Context, name, uri string) (api.Id, error) {
	if err := l.checkRegistered(); err != nil {
		return api.Id{}, err
	}
	ds, err := l.reg.Create(name, uri)
	if err != nil {
		return api.Id{}, err
	}
	return ds.Id(), nil
}

func (l *Local) RemoveDataSource(ctx context.Context, ds api.Id) error {
	if err := l.checkRegistered(); err != nil {
		return err
	}
	return l.reg.Remove(ds)
}

func (l *Local) ListDatasets(ctx context.Context) ([]api.Id, error) {
	if err := l.checkLink(); err != nil {
		return nil, err
	}
	return l.reg.List(), nil
}

func (l *Local) Descriptions(ctx context.Context) ([]api.DataSourceDescription, error) {
	if err := l.checkLink(); err != nil {
		return nil, err
	}
	return l.reg.Descriptions(), nil
}

func (l *Local) GetDescription(ctx context.Context, id api.Id) (*api.DataSourceDescription, error) {
	if err := l.checkLink(); err != nil {
		return nil, err
	}
	ds, err := l.reg.Get(id)
	if err != nil {
		return nil, nil
	}
	desc := ds.Description()
	return &desc, nil
}

func (l *Local) GetDescriptionByURI(ctx context.Context, uri string) (*api.DataSourceDescription, error) {
	if err := l.checkLink(); err != nil {
		return nil, err
	}
	ds := l.reg.GetByURI(uri)
	if ds == nil {
		return nil, nil
	}
	desc := ds.Description()
	return &desc, nil
}

func (l *Local) SendPatch(ctx context.Context, id api.Id, p *patch.Patch) (api.Version, error) {
	if err := l.checkRegistered(); err != nil {
		return api.Unset, err
	}
	ds, err := l.reg.Get(id)
	if err != nil {
		return api.Unset, err
	}
	return ds.Append(p)
}

func (l *Local) FetchVersion(ctx context.Context, id api.Id, v api.Version) (*patch.Patch, error) {
	if err := l.checkLink(); err != nil {
		return nil, err
	}
	ds, err := l.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return ds.FetchVersion(v)
}

func (l *Local) FetchId(ctx context.Context, id api.Id, patchId api.Id) (*patch.Patch, error) {
	if err := l.checkLink(); err != nil {
		return nil, err
	}
	ds, err := l.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return ds.FetchId(patchId)
}

func (l *Local) GetCurrentVersion(ctx context.Context, id api.Id) (api.Version, error) {
	if err := l.checkLink(); err != nil {
		return api.Unset, err
	}
	ds, err := l.reg.Get(id)
	if err != nil {
		return api.Unset, err
	}
	return ds.CurrentVersion(), nil
}

// Close marks the link closed. The registry stays open; it belongs to
// whoever created it.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.client = api.Id{}
	return nil
}
