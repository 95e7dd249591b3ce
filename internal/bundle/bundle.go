// Copyright 2015 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bundle manipulates juju-deployer bundle documents: decoding
// them into an order-preserving generic form, extracting topology
// subsets, and encoding them back to yaml.
package bundle

import (
	"io"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

const (
	servicesKey  = "services"
	relationsKey = "relations"
)

// Document is a decoded bundle: an ordered mapping of top-level keys
// to nested mappings, sequences and scalars. Decoding into a MapSlice
// makes every nested mapping a MapSlice as well, so key order survives
// a round trip through the codec.
type Document yaml.MapSlice

// ParseDocument decodes a bundle document from data. The top level of
// the document must be a mapping.
func ParseDocument(data []byte) (Document, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotate(err, "cannot parse bundle document")
	}
	return Document(doc), nil
}

// ReadDocument decodes a bundle document from r.
func ReadDocument(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ParseDocument(data)
}

// Marshal encodes the document back to yaml, preserving the order in
// which keys were decoded or constructed.
func (d Document) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(yaml.MapSlice(d))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// value returns the value of the named top-level section, or nil when
// the section is absent.
func (d Document) value(key string) interface{} {
	for _, item := range d {
		if item.Key == key {
			return item.Value
		}
	}
	return nil
}

// Services returns the services section of the document. A bundle
// without a services mapping cannot be reduced, so a missing or
// non-mapping section is a NotValid error.
func (d Document) Services() (yaml.MapSlice, error) {
	v := d.value(servicesKey)
	if v == nil {
		return nil, errors.NotValidf("bundle document without services section")
	}
	services, ok := v.(yaml.MapSlice)
	if !ok {
		return nil, errors.NotValidf("services section of type %T", v)
	}
	return services, nil
}

// Relations returns the relations section of the document. A missing
// or empty section means the bundle declares no relations.
func (d Document) Relations() []interface{} {
	relations, _ := d.value(relationsKey).([]interface{})
	return relations
}
