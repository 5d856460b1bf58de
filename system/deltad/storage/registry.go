package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/storage/index"
)

// Backend names for Options.Index and Options.Store.
const (
	BackendMem    = "mem"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const (
	sourceFile = "source.yaml"
	removedDir = "_removed"
	patchesDir = "patches"
)

// DataSource is one managed dataset: its description and its patch log.
type DataSource struct {
	*PatchLog
	// Dir is the data source's directory, empty for in-memory sources.
	Dir string
}

func (ds *DataSource) Id() api.Id {
	return ds.desc.Id
}

// Options configures a Registry.
type Options struct {
	// Root is the data directory. Empty means everything is kept in memory.
	Root string
	// Index selects the log index backend: mem, file or sqlite.
	// Defaults to file with a Root and mem without.
	Index string
	// Store selects the patch store: mem or file.
	// Defaults to file with a Root and mem without.
	Store string
	Log   *slog.Logger
}

// Validate reports an unknown backend or an unusable combination of
// backends and data directory.
func (o Options) Validate() error {
	return o.setDefaults()
}

func (o *Options) setDefaults() error {
	def := BackendMem
	if o.Root != "" {
		def = BackendFile
	}
	if o.Index == "" {
		o.Index = def
	}
	if o.Store == "" {
		o.Store = def
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	switch o.Index {
	case BackendMem, BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown index backend %q", o.Index)
	}
	switch o.Store {
	case BackendMem, BackendFile:
	default:
		return fmt.Errorf("unknown patch store %q", o.Store)
	}
	durableIndex := o.Index != BackendMem
	durableStore := o.Store != BackendMem
	if o.Root == "" && (durableIndex || durableStore) {
		return fmt.Errorf("index %q and store %q need a data directory", o.Index, o.Store)
	}
	if o.Root != "" && (!durableIndex || !durableStore) {
		return fmt.Errorf("a data directory needs a durable index and store, got index %q store %q", o.Index, o.Store)
	}
	return nil
}

// Registry owns the data sources of a server.
type Registry struct {
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	sources map[api.Id]*DataSource
}

// OpenRegistry opens the registry described by opts. A file backed
// registry reopens every data source found under the root.
func OpenRegistry(opts Options) (*Registry, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	r := &Registry{
		opts:    opts,
		log:     opts.Log.With("component", "registry"),
		sources: map[api.Id]*DataSource{},
	}
	if opts.Root == "" {
		return r, nil
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, err
	}
	if err := r.load(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	entries, err := os.ReadDir(r.opts.Root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == removedDir {
			continue
		}
		dir := filepath.Join(r.opts.Root, entry.Name())
		desc, err := readDescription(dir)
		if errors.Is(err, os.ErrNotExist) {
			r.log.Warn("skipping directory without description", "dir", dir)
			continue
		}
		if err != nil {
			return fmt.Errorf("data source %s: %w", dir, err)
		}
		ds, err := r.open(*desc, dir)
		if err != nil {
			return fmt.Errorf("data source %s: %w", dir, err)
		}
		r.sources[desc.Id] = ds
		r.log.Info("opened data source", "name", desc.Name, "id", desc.Id.Short(), "version", ds.CurrentVersion())
	}
	return nil
}

func readDescription(dir string) (*api.DataSourceDescription, error) {
	d, err := os.ReadFile(filepath.Join(dir, sourceFile))
	if err != nil {
		return nil, err
	}
	desc := &api.DataSourceDescription{}
	if err := yaml.UnmarshalWithOptions(d, desc, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", sourceFile, err)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

func writeDescription(dir string, desc *api.DataSourceDescription) error {
	d, err := yaml.Marshal(desc)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, sourceFile+".tmp")
	if err := os.WriteFile(tmp, d, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, sourceFile))
}

// open builds the data source for desc; dir is empty for memory.
func (r *Registry) open(desc api.DataSourceDescription, dir string) (*DataSource, error) {
	var (
		idx   index.LogIndex
		store PatchStore
		err   error
	)
	switch r.opts.Index {
	case BackendMem:
		idx = index.NewMem()
	case BackendFile:
		idx, err = index.OpenFile(filepath.Join(dir, "index.log"), r.opts.Log)
	case BackendSQLite:
		idx, err = index.OpenSQLite(filepath.Join(dir, "index.db"))
	}
	if err != nil {
		return nil, err
	}
	switch r.opts.Store {
	case BackendMem:
		store = NewMemStore()
	case BackendFile:
		store, err = NewFileStore(filepath.Join(dir, patchesDir))
	}
	if err != nil {
		idx.Close()
		return nil, err
	}
	return &DataSource{PatchLog: NewPatchLog(desc, idx, store, r.opts.Log), Dir: dir}, nil
}

// Create makes a new, empty data source. Names and non-empty URIs must be
// unique within the registry.
func (r *Registry) Create(name, uri string) (*DataSource, error) {
	desc, err := api.NewDataSourceDescription(api.NewId(), name, uri)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ds := range r.sources {
		if ds.desc.Name == name {
			return nil, api.Errorf(api.ErrCodeBadRequest, "data source named %q already exists", name)
		}
		if uri != "" && ds.desc.URI == uri {
			return nil, api.Errorf(api.ErrCodeBadRequest, "data source with uri %q already exists", uri)
		}
	}
	dir := ""
	if r.opts.Root != "" {
		dir = filepath.Join(r.opts.Root, url.PathEscape(desc.Id.Plain()))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		if err := writeDescription(dir, desc); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}
	ds, err := r.open(*desc, dir)
	if err != nil {
		if dir != "" {
			os.RemoveAll(dir)
		}
		return nil, err
	}
	r.sources[desc.Id] = ds
	r.log.Info("created data source", "name", name, "id", desc.Id.Short())
	return ds, nil
}

// Remove closes the data source and takes it out of the registry. On disk
// its directory is moved under _removed, never deleted.
func (r *Registry) Remove(id api.Id) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.sources[id]
	if !ok {
		return api.Errorf(api.ErrCodeNotFound, "no data source %s", id)
	}
	delete(r.sources, id)
	if err := ds.Close(); err != nil {
		r.log.Warn("error closing removed data source", "id", id.Short(), "error", err)
	}
	if ds.Dir != "" {
		graveyard := filepath.Join(r.opts.Root, removedDir)
		if err := os.MkdirAll(graveyard, 0755); err != nil {
			return err
		}
		dst := filepath.Join(graveyard, fmt.Sprintf("%s-%d", filepath.Base(ds.Dir), time.Now().UnixNano()))
		if err := os.Rename(ds.Dir, dst); err != nil {
			return fmt.Errorf("move aside %s: %w", ds.Dir, err)
		}
	}
	r.log.Info("removed data source", "name", ds.desc.Name, "id", id.Short())
	return nil
}

// Get returns the data source with the given id.
func (r *Registry) Get(id api.Id) (*DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.sources[id]
	if !ok {
		return nil, api.Errorf(api.ErrCodeNotFound, "no data source %s", id)
	}
	return ds, nil
}

// GetByURI returns the data source with the given URI, or nil.
func (r *Registry) GetByURI(uri string) *DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ds := range r.sources {
		if ds.desc.URI == uri {
			return ds
		}
	}
	return nil
}

// GetByName returns the data source with the given name, or nil.
func (r *Registry) GetByName(name string) *DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ds := range r.sources {
		if ds.desc.Name == name {
			return ds
		}
	}
	return nil
}

// List returns the ids of all data sources, ordered by name.
func (r *Registry) List() []api.Id {
	descs := r.Descriptions()
	res := make([]api.Id, len(descs))
	for i := range descs {
		res[i] = descs[i].Id
	}
	return res
}

// Descriptions returns all descriptions, ordered by name.
func (r *Registry) Descriptions() []api.DataSourceDescription {
	r.mu.RLock()
	res := make([]api.DataSourceDescription, 0, len(r.sources))
	for _, ds := range r.sources {
		res = append(res, ds.desc)
	}
	r.mu.RUnlock()
	slices.SortFunc(res, func(a, b api.DataSourceDescription) int {
		return strings.Compare(a.Name, b.Name)
	})
	return res
}

// Close closes every data source.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, ds := range r.sources {
		errs = append(errs, ds.Close())
	}
	return errors.Join(errs...)
}
