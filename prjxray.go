/*
Package prjxray converts between the configuration memory of a 7-series
FPGA and FASM feature tags.

A Database holds the tile grid and the per tile type segbits tables that map
each feature to the bits it sets or clears. An Assembler turns features into
frames, and a Disassembler recovers features from a sparse bit dump,
annotating any bits it cannot explain.

	db, err := prjxray.NewDatabase("db/artix7", prjxray.WithPart("xc7a35tcpg236-1"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	a, err := prjxray.NewAssembler(db)
	...
*/
package prjxray

import (
	"io/ioutil"
	"log"
)

type config struct {
	logger *log.Logger
	part   string
	cache  string
}

func defaultConfig() config {
	return config{
		logger: log.New(ioutil.Discard, "", 0),
	}
}

// Option configures a Database
type Option func(*config)

// WithLogger sets the logger used by the database and everything built from
// it. By default nothing is logged.
func WithLogger(logger *log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPart selects the part directory, relative to the database root, that
// holds tilegrid.json. By default it is read from the root itself.
func WithPart(part string) Option {
	return func(c *config) {
		c.part = part
	}
}

// WithCache sets the path of an SQLite file used to cache segbits tables.
// Tables are read from the cache when present and written through to it
// otherwise.
func WithCache(file string) Option {
	return func(c *config) {
		c.cache = file
	}
}
