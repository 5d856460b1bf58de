// Package storage keeps patch logs.
//
// Storage manages
//
//   - patch payload bytes, by patch id (PatchStore)
//
//   - the version index of each log (see package index)
//
//   - serialized appends to a log (PatchLog)
//
//   - the set of data sources of a server, in memory or under a root
//     directory (Registry)
//
// A file backed registry lays out one directory per data source:
//
//	<root>/<id>/source.yaml     description
//	<root>/<id>/index.log       index (or index.db for sqlite)
//	<root>/<id>/patches/*.patch payloads
//	<root>/_removed/            removed data sources
package storage
