// Copyright 2015 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/yaml.v2"
)

var logger = loggo.GetLogger("bundlereducer.bundle")

// Attribute keys rewritten by extraction. Deployer bundles carry
// placement directives under "to"; older bundles used "placement".
const (
	constraintsKey = "constraints"
	toKey          = "to"
	placementKey   = "placement"
)

// ExtractConfig holds the selectors and toggles for one extraction.
// Each flag switches a distinct step of the algorithm on or off
// independently of the others.
type ExtractConfig struct {
	// Include names the services to keep. Names that do not appear
	// in the document contribute nothing and are not an error.
	Include set.Strings

	// Exclude names services to drop. Exclusion is applied last and
	// wins over both direct inclusion and related expansion.
	Exclude set.Strings

	// ExcludeRelated suppresses the one-hop expansion that pulls in
	// services directly related to included ones.
	ExcludeRelated bool

	// RemoveConstraints drops the constraints attribute from every
	// surviving service.
	RemoveConstraints bool

	// RemovePlacements drops placement directives from every
	// surviving service.
	RemovePlacements bool
}

// edge is a relation reduced to its two bare service names, keeping
// the original endpoint pair for the output document.
type edge struct {
	a, b string
	pair []interface{}
}

// Extract returns a new document containing only the services selected
// by cfg, the relations that retain both endpoints, and every other
// top-level section verbatim. Services directly related to an included
// service are pulled in unless cfg.ExcludeRelated is set; the expansion
// is a single hop and never follows the relations of the services it
// adds. The input document is not mutated: surviving services and
// relations are copied into the result, and the relative order of the
// source document is preserved throughout.
func Extract(doc Document, cfg ExtractConfig) (Document, error) {
	services, err := doc.Services()
	if err != nil {
		return nil, errors.Trace(err)
	}

	known := set.NewStrings()
	for _, item := range services {
		if name, ok := item.Key.(string); ok {
			known.Add(name)
		}
	}

	edges := parseRelations(doc.Relations())
	kept := resolveKept(known, edges, cfg)
	logger.Debugf("keeping services: %s", strings.Join(kept.SortedValues(), ", "))

	out := make(Document, 0, len(doc))
	for _, item := range doc {
		switch item.Key {
		case servicesKey:
			item.Value = filterServices(services, kept, cfg)
		case relationsKey:
			item.Value = filterRelations(edges, kept)
		}
		out = append(out, item)
	}
	return out, nil
}

// parseRelations builds the edge index. A relation is a two-element
// sequence of endpoint specifiers of the form "service[:interface]";
// entries of any other shape cannot name two endpoints and are
// skipped, which drops them from the output.
func parseRelations(relations []interface{}) []edge {
	edges := make([]edge, 0, len(relations))
	for _, rel := range relations {
		pair, ok := rel.([]interface{})
		if !ok || len(pair) != 2 {
			logger.Warningf("skipping malformed relation %v", rel)
			continue
		}
		a, aok := endpointService(pair[0])
		b, bok := endpointService(pair[1])
		if !aok || !bok {
			logger.Warningf("skipping malformed relation %v", rel)
			continue
		}
		edges = append(edges, edge{a: a, b: b, pair: pair})
	}
	return edges
}

// endpointService strips the interface qualifier from an endpoint
// specifier, leaving the bare service name.
func endpointService(ep interface{}) (string, bool) {
	s, ok := ep.(string)
	if !ok {
		return "", false
	}
	return strings.SplitN(s, ":", 2)[0], true
}

// resolveKept computes the set of services that survive extraction:
// the included services that exist in the document, plus their direct
// neighbours unless related services are excluded, minus the excluded
// services. Neighbour expansion tests membership against the original
// include set only, so a neighbour's own relations never pull in
// further services.
func resolveKept(known set.Strings, edges []edge, cfg ExtractConfig) set.Strings {
	kept := cfg.Include.Intersection(known)
	if !cfg.ExcludeRelated {
		related := set.NewStrings()
		for _, e := range edges {
			switch {
			case kept.Contains(e.a) && !kept.Contains(e.b) && known.Contains(e.b):
				related.Add(e.b)
			case kept.Contains(e.b) && !kept.Contains(e.a) && known.Contains(e.a):
				related.Add(e.a)
			}
		}
		kept = kept.Union(related)
	}
	return kept.Difference(cfg.Exclude)
}

// filterServices returns the surviving service entries in their
// original order, each with a fresh copy of its attribute mapping.
func filterServices(services yaml.MapSlice, kept set.Strings, cfg ExtractConfig) yaml.MapSlice {
	out := make(yaml.MapSlice, 0, kept.Size())
	for _, item := range services {
		name, ok := item.Key.(string)
		if !ok || !kept.Contains(name) {
			continue
		}
		item.Value = copyAttributes(item.Value, cfg)
		out = append(out, item)
	}
	return out
}

// copyAttributes shallow-copies a service's attribute mapping, leaving
// out the constraints and placement attributes according to cfg.
// Values that are not mappings (an empty service entry) pass through.
func copyAttributes(attrs interface{}, cfg ExtractConfig) interface{} {
	m, ok := attrs.(yaml.MapSlice)
	if !ok {
		return attrs
	}
	out := make(yaml.MapSlice, 0, len(m))
	for _, item := range m {
		switch item.Key {
		case constraintsKey:
			if cfg.RemoveConstraints {
				continue
			}
		case toKey, placementKey:
			if cfg.RemovePlacements {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

// filterRelations returns, in original order, copies of the relation
// entries whose endpoints both survive.
func filterRelations(edges []edge, kept set.Strings) []interface{} {
	out := make([]interface{}, 0, len(edges))
	for _, e := range edges {
		if kept.Contains(e.a) && kept.Contains(e.b) {
			out = append(out, append([]interface{}(nil), e.pair...))
		}
	}
	return out
}
