package api

import "fmt"

// LogEntry records one appended patch. Entries are created once, when the
// append succeeds, and never change afterwards. Previous is the nil Id for
// the first entry of a log.
type LogEntry struct {
	Id       Id      `msgpack:"id"`
	Version  Version `msgpack:"version"`
	Previous Id      `msgpack:"prev"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%d %s prev=%s]", e.Version, e.Id.Short(), e.Previous.Short())
}
