// Copyright 2015 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/juju/cmd/v3"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/juju/bundlereducer/internal/bundle"
)

var logger = loggo.GetLogger("bundlereducer")

// allServices is the sentinel include list meaning every service in
// the bundle. It is recognized but has no extraction semantics yet.
const allServices = "ALL"

var reduceDoc = `
bundle-reducer extracts a subset of the services in a juju-deployer
bundle yaml file, producing a new bundle that contains only those
services, the services directly related to them, and the relations
that still join two surviving services.

By default directly-related services are included along with the named
ones, and the result is saved to an out_<random>.yaml file in the
current directory.

Examples:

Reduce to only ceilometer, with all of the directly-related services,
saving to an auto-generated filename in the current dir:

    bundle-reducer -i my.yaml -s ceilometer

Reduce to only keystone and cinder with none of the directly-related
services, remove all constraints, and write to a new file:

    bundle-reducer -i my.yaml -o my_new.yaml -s keystone,cinder \
        --exclude-related --remove-constraints

Reduce to keystone and cinder plus any related services, overwriting
an existing file, with debug output on:

    bundle-reducer -y -d -i my.yaml -o my.yaml -s keystone,cinder
`

func newReduceCommand() cmd.Command {
	return &reduceCommand{}
}

// reduceCommand reduces a bundle to a subset of its services.
type reduceCommand struct {
	cmd.CommandBase

	inFile   string
	outFile  string
	services string
	exclude  string

	overwrite         bool
	debug             bool
	excludeRelated    bool
	removeConstraints bool
	removePlacements  bool

	include    set.Strings
	excludeSet set.Strings
}

// Info implements cmd.Command.
func (c *reduceCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "bundle-reducer",
		Purpose: "Extract a topology subset from a deployer bundle yaml file.",
		Doc:     reduceDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *reduceCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.inFile, "i", "", "")
	f.StringVar(&c.inFile, "in-file", "", "Yaml input (source) file (required)")
	f.StringVar(&c.outFile, "o", "", "")
	f.StringVar(&c.outFile, "out-file", "", "Yaml output (destination) file (default: ./out_<random>.yaml)")
	f.StringVar(&c.services, "s", allServices, "")
	f.StringVar(&c.services, "services", allServices, "Comma-separated list of services to include")
	f.StringVar(&c.exclude, "e", "", "")
	f.StringVar(&c.exclude, "exclude", "", "Comma-separated list of services to exclude; wins over include and over related")
	f.BoolVar(&c.overwrite, "y", false, "")
	f.BoolVar(&c.overwrite, "yes-overwrite", false, "Overwrite the output file if it exists")
	f.BoolVar(&c.debug, "d", false, "")
	f.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	f.BoolVar(&c.excludeRelated, "exclude-related", false, "Do not include directly-related services")
	f.BoolVar(&c.removeConstraints, "remove-constraints", false, "Remove all constraints from surviving services")
	f.BoolVar(&c.removePlacements, "remove-placements", false, "Remove all placement directives from surviving services")
}

// Init implements cmd.Command.
func (c *reduceCommand) Init(args []string) error {
	if err := cmd.CheckEmpty(args); err != nil {
		return errors.Trace(err)
	}
	if c.inFile == "" {
		return errors.New("no input bundle file specified")
	}
	if c.services == "" {
		return errors.New("no services specified")
	}
	if c.outFile == "" {
		c.outFile = fmt.Sprintf("out_%s.yaml",
			utils.RandomString(8, append(utils.LowerAlpha, utils.Digits...)))
	}
	c.include = splitNames(c.services)
	c.excludeSet = splitNames(c.exclude)
	return nil
}

// splitNames turns a comma-separated service list into a set, dropping
// empty segments left by stray commas.
func splitNames(list string) set.Strings {
	names := set.NewStrings()
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names.Add(name)
		}
	}
	return names
}

// Run implements cmd.Command.
func (c *reduceCommand) Run(ctx *cmd.Context) error {
	if c.debug {
		if err := loggo.ConfigureLoggers("<root>=DEBUG"); err != nil {
			return errors.Trace(err)
		}
	}
	if strings.EqualFold(strings.TrimSpace(c.services), allServices) {
		return errors.NotImplementedf("including all services")
	}
	if overlap := c.include.Intersection(c.excludeSet); !overlap.IsEmpty() {
		ctx.Warningf("including and excluding the same service, YMMV: %s",
			strings.Join(overlap.SortedValues(), ", "))
	}

	outPath := ctx.AbsPath(c.outFile)
	if _, err := os.Stat(outPath); err == nil {
		if !c.overwrite {
			return errors.AlreadyExistsf("output file %q", c.outFile)
		}
		ctx.Warningf("output file exists and will be overwritten: %s", c.outFile)
	}

	data, err := os.ReadFile(ctx.AbsPath(c.inFile))
	if os.IsNotExist(err) {
		return errors.NotFoundf("input file %q", c.inFile)
	} else if err != nil {
		return errors.Trace(err)
	}
	doc, err := bundle.ParseDocument(data)
	if err != nil {
		return errors.Annotatef(err, "cannot read bundle from %q", c.inFile)
	}

	logger.Infof("reducing %s to services: %s", c.inFile,
		strings.Join(c.include.SortedValues(), ", "))
	reduced, err := bundle.Extract(doc, bundle.ExtractConfig{
		Include:           c.include,
		Exclude:           c.excludeSet,
		ExcludeRelated:    c.excludeRelated,
		RemoveConstraints: c.removeConstraints,
		RemovePlacements:  c.removePlacements,
	})
	if err != nil {
		return errors.Trace(err)
	}

	out, err := reduced.Marshal()
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("wrote reduced bundle to %s", c.outFile)
	return nil
}
