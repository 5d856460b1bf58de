// Package link defines the protocol between clients and a patch log
// server, independent of transport.
//
// Local serves a Registry in process. HTTP talks to a server.Server.
// Both report failures with the api error codes, so callers can tell a
// missing dataset (api.ErrNotFound) from an unreachable server
// (api.ErrTransient) without knowing which transport is in use.
package link

import (
	"context"

	"github.com/signadot/deltalog/system/deltad/api"
	"github.com/signadot/deltalog/system/deltad/patch"
)

// Link is a connection to a patch log server.
//
// A link starts open and unregistered. Register binds it to a client id;
// NewDataSource, RemoveDataSource and SendPatch need a registered link and
// fail with api.ErrNotConnected otherwise. After Close every operation
// fails with api.ErrNotConnected.
type Link interface {
	Ping(ctx context.Context) error

	Register(ctx context.Context, client api.Id) error
	Deregister(ctx context.Context) error
	IsRegistered() bool
	// ClientId returns the registered client id, or the nil id.
	ClientId() api.Id

	NewDataSource(ctx context.Context, name, uri string) (api.Id, error)
	RemoveDataSource(ctx context.Context, ds api.Id) error
	ListDatasets(ctx context.Context) ([]api.Id, error)
	Descriptions(ctx context.Context) ([]api.DataSourceDescription, error)
	// GetDescription returns nil for an unknown dataset.
	GetDescription(ctx context.Context, ds api.Id) (*api.DataSourceDescription, error)
	// GetDescriptionByURI returns nil when no dataset has the uri.
	GetDescriptionByURI(ctx context.Context, uri string) (*api.DataSourceDescription, error)

	// SendPatch appends p to the dataset's log and returns its version.
	SendPatch(ctx context.Context, ds api.Id, p *patch.Patch) (api.Version, error)
	// FetchVersion returns the patch at v, or nil if the log has none.
	FetchVersion(ctx context.Context, ds api.Id, v api.Version) (*patch.Patch, error)
	// FetchId returns the patch with the given id, or nil.
	FetchId(ctx context.Context, ds api.Id, patchId api.Id) (*patch.Patch, error)
	GetCurrentVersion(ctx context.Context, ds api.Id) (api.Version, error)

	Close() error
}
