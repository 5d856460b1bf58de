package api

import (
	"fmt"
)

// DataSourceDescription names a managed dataset. All three fields take part
// in equality; URI is optional.
type DataSourceDescription struct {
	Id   Id     `msgpack:"id" yaml:"id"`
	Name string `msgpack:"name" yaml:"name"`
	URI  string `msgpack:"uri,omitempty" yaml:"uri,omitempty"`
}

// NewDataSourceDescription validates and returns a description.
func NewDataSourceDescription(id Id, name, uri string) (*DataSourceDescription, error) {
	d := &DataSourceDescription{Id: id, Name: name, URI: uri}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the required fields.
func (d *DataSourceDescription) Validate() error {
	if d.Id.IsNil() {
		return NewError(ErrCodeInvalidDescription, "missing id")
	}
	if d.Name == "" {
		return NewError(ErrCodeInvalidDescription, "missing name")
	}
	return nil
}

func (d DataSourceDescription) String() string {
	return fmt.Sprintf("[%s, %s, <%s>]", d.Id, d.Name, d.URI)
}
