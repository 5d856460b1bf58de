package api

// Request and response bodies of the HTTP link. All are msgpack encoded.

// ClientHeader carries the registered client id on mutating requests.
const ClientHeader = "Delta-Client"

type RegisterRequest struct {
	Client Id `msgpack:"client"`
}

type CreateRequest struct {
	Name string `msgpack:"name"`
	URI  string `msgpack:"uri,omitempty"`
}

type CreateResponse struct {
	Id Id `msgpack:"id"`
}

type ListResponse struct {
	Datasets []DataSourceDescription `msgpack:"datasets"`
}

type VersionResponse struct {
	Version Version `msgpack:"version"`
}

type PingResponse struct {
	Now int64 `msgpack:"now"`
}
