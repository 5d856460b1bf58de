// Package deltad is the root of the patch log system.
//
// A server keeps, per dataset, a log of patches: each patch names itself
// and its predecessor, and the log assigns consecutive versions as patches
// are appended. Clients replicate a dataset by fetching the patches after
// their local version and replaying them into a local target.
//
// Subpackages:
//
//	api      ids, versions, descriptions, errors and wire messages
//	patch    patches, sinks and the replay pipeline
//	dataset  an in-memory quad store sink
//	storage  patch logs, their indexes and the dataset registry
//	link     the client side of the protocol, in process or over HTTP
//	server   the HTTP server
//	client   the sync engine
package deltad
