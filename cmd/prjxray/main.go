package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strconv"

	prjxray "github.com/f4pga/prjxray-sub001"
	"github.com/f4pga/prjxray-sub001/bitstream"
	"github.com/f4pga/prjxray-sub001/fasm"
	"github.com/urfave/cli/v2"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version, V",
		Usage: "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(ioutil.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func openDatabase(c *cli.Context) (*prjxray.Database, error) {
	return prjxray.NewDatabase(c.String("db-root"),
		prjxray.WithLogger(newLogger(c)),
		prjxray.WithPart(c.String("part")),
		prjxray.WithCache(c.String("cache")))
}

func create(name string) (io.WriteCloser, error) {
	if name == "" || name == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(name)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func fasm2frames(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	db, err := openDatabase(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer db.Close()

	a, err := prjxray.NewAssembler(db)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	if err := a.ParseFasmFile(c.Args().First()); err != nil {
		return cli.NewExitError(err, 1)
	}

	frames, err := a.Frames(c.Bool("sparse"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	w, err := create(c.Args().Get(1))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer w.Close()

	if c.Bool("binary") {
		b, err := frames.MarshalBinary()
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		if _, err = w.Write(b); err != nil {
			return cli.NewExitError(err, 1)
		}
		return nil
	}

	if err := bitstream.WriteFrm(w, frames); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func bits2fasm(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	db, err := openDatabase(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer db.Close()

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer f.Close()

	bitdata, err := bitstream.LoadBitdata2(f)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	d, err := prjxray.NewDisassembler(db,
		prjxray.Verbose(c.Bool("verbose")),
		prjxray.SuppressZeroFeatures(c.Bool("suppress-zero")))
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	var lines []fasm.Line
	if jobs := c.Int("jobs"); jobs > 1 {
		lines, err = d.FindFeaturesParallel(context.Background(), bitdata, jobs)
	} else {
		lines, err = d.FindFeaturesInBitstream(bitdata)
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	w, err := create(c.Args().Get(1))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer w.Close()

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return cli.NewExitError(err, 1)
		}
	}
	if err := bw.Flush(); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func segmaps(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	frame, err := strconv.ParseUint(c.Args().First(), 0, 32)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	db, err := openDatabase(c)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer db.Close()

	grid, err := db.Grid()
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	for _, info := range grid.SegmentMap().SegmentInfoForFrame(uint32(frame)) {
		fmt.Printf("%s %s base 0x%08x frames %d offset %d words %d\n",
			info.Tile, info.BlockType, info.Bits.BaseAddress, info.Bits.Frames, info.Bits.Offset, info.Bits.Words)
	}

	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "prjxray"
	app.Usage = "7-series bitstream and FASM conversion utility"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db-root",
			EnvVars: []string{"PRJXRAY_DB_ROOT"},
			Value:   cwd,
			Usage:   "path to device database",
		},
		&cli.StringFlag{
			Name:    "part",
			EnvVars: []string{"PRJXRAY_PART"},
			Usage:   "part directory holding tilegrid.json",
		},
		&cli.StringFlag{
			Name:    "cache",
			EnvVars: []string{"PRJXRAY_CACHE"},
			Usage:   "path to SQLite segbits cache",
		},
		&cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "import",
			Usage:       "Import segbits tables into the cache",
			Description: "",
			Action: func(c *cli.Context) error {
				if c.String("cache") == "" {
					return cli.NewExitError("--cache is required", 1)
				}

				db, err := openDatabase(c)
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				defer db.Close()

				n, err := db.ImportCache()
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				newLogger(c).Printf("Imported %d tile types\n", n)

				return nil
			},
		},
		{
			Name:        "fasm2frames",
			Usage:       "Assemble FASM into frames",
			Description: "",
			ArgsUsage:   "FASM [OUTPUT]",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "sparse",
					Usage: "only emit frames of tiles in use",
				},
				&cli.BoolFlag{
					Name:  "binary",
					Usage: "write binary frames rather than text",
				},
			},
			Action: fasm2frames,
		},
		{
			Name:        "bits2fasm",
			Usage:       "Disassemble a bit dump into FASM",
			Description: "",
			ArgsUsage:   "BITS [OUTPUT]",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "jobs",
					Value: 1,
					Usage: "number of frame workers",
				},
				&cli.BoolFlag{
					Name:  "suppress-zero",
					Usage: "omit features made only of cleared bits",
				},
			},
			Action: bits2fasm,
		},
		{
			Name:        "segmaps",
			Usage:       "List the tile regions containing a frame address",
			Description: "",
			ArgsUsage:   "ADDRESS",
			Action:      segmaps,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
