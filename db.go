package prjxray

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/f4pga/prjxray-sub001/bitstream"
	_ "github.com/mattn/go-sqlite3"
)

const (
	tilegridFilename = "tilegrid.json"
	segbitsPrefix    = "segbits_"
	ppipsPrefix      = "ppips_"
	tableSuffix      = ".db"
)

var blockTypeSuffix = map[bitstream.BlockType]string{
	bitstream.BlockTypeCLBIOCLK: "",
	bitstream.BlockTypeBlockRAM: ".block_ram",
	bitstream.BlockTypeCFGCLB:   ".cfg_clb",
}

// Database is a device database: a tile grid plus the segbits and pseudo
// pip tables of every tile type. Tables are loaded on first use and kept
// for the life of the Database, which is safe for concurrent use.
type Database struct {
	root  string
	cfg   config
	cache *sql.DB

	mu      sync.Mutex
	segbits map[string]*TileSegbits
	grid    *Grid
}

// NewDatabase opens the database rooted at the given directory
func NewDatabase(root string, opts ...Option) (*Database, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("not a directory")
	}

	db := &Database{
		root:    root,
		cfg:     cfg,
		segbits: make(map[string]*TileSegbits),
	}

	if cfg.cache != "" {
		if db.cache, err = openCache(cfg.cache); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func openCache(file string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	// All access happens under Database.mu
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS tile_type (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL UNIQUE)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS segbit (tile_type_id INTEGER NOT NULL, block_type INTEGER NOT NULL, line INTEGER NOT NULL, text TEXT NOT NULL, FOREIGN KEY(tile_type_id) REFERENCES tile_type(id))"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS ppip (tile_type_id INTEGER NOT NULL, line INTEGER NOT NULL, text TEXT NOT NULL, FOREIGN KEY(tile_type_id) REFERENCES tile_type(id))"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the cache, if any
func (db *Database) Close() error {
	if db.cache == nil {
		return nil
	}
	return db.cache.Close()
}

// Root returns the database root directory
func (db *Database) Root() string {
	return db.root
}

// Grid returns the tile grid, loading it on first use
func (db *Database) Grid() (*Grid, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.grid != nil {
		return db.grid, nil
	}

	tilegrid, err := LoadTilegrid(filepath.Join(db.root, db.cfg.part, tilegridFilename))
	if err != nil {
		return nil, err
	}
	grid, err := NewGrid(db, tilegrid)
	if err != nil {
		return nil, err
	}
	db.cfg.logger.Printf("Loaded grid with %d tiles\n", len(grid.tiles))

	db.grid = grid
	return grid, nil
}

// TileSegbits returns the tables of a tile type. A tile type with no
// tables yields an empty TileSegbits rather than an error.
func (db *Database) TileSegbits(tileType string) (*TileSegbits, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if s, ok := db.segbits[tileType]; ok {
		return s, nil
	}

	tables, err := db.loadTables(tileType)
	if err != nil {
		return nil, err
	}
	s, err := newTileSegbits(tileType, tables)
	if err != nil {
		return nil, err
	}

	db.segbits[tileType] = s
	return s, nil
}

func tablePath(root, prefix, tileType, suffix string) string {
	return filepath.Join(root, prefix+strings.ToLower(tileType)+suffix+tableSuffix)
}

func readTable(file string) ([]tableLine, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []tableLine
	scanner := bufio.NewScanner(f)
	num := 0
	for scanner.Scan() {
		num++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		lines = append(lines, tableLine{file: file, num: num, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// readTables reads a tile type's tables from the database directory.
// Missing files are not an error.
func (db *Database) readTables(tileType string) (*segbitsTables, error) {
	tables := &segbitsTables{
		segbits: make(map[bitstream.BlockType][]tableLine),
	}

	for _, bt := range bitstream.BlockTypes {
		lines, err := readTable(tablePath(db.root, segbitsPrefix, tileType, blockTypeSuffix[bt]))
		switch {
		case os.IsNotExist(err):
			continue
		case err != nil:
			return nil, err
		}
		tables.segbits[bt] = lines
	}

	lines, err := readTable(tablePath(db.root, ppipsPrefix, tileType, ""))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		tables.ppips = lines
	}

	return tables, nil
}

func (db *Database) loadTables(tileType string) (*segbitsTables, error) {
	if db.cache != nil {
		tables, ok, err := db.cachedTables(tileType)
		if err != nil {
			return nil, err
		}
		if ok {
			db.cfg.logger.Printf("Loaded %s from cache\n", tileType)
			return tables, nil
		}
	}

	tables, err := db.readTables(tileType)
	if err != nil {
		return nil, err
	}
	db.cfg.logger.Printf("Loaded %s from %s\n", tileType, db.root)

	if db.cache != nil {
		if err := db.storeTables(tileType, tables); err != nil {
			return nil, err
		}
	}

	return tables, nil
}

func (db *Database) cachedTables(tileType string) (*segbitsTables, bool, error) {
	var id int64
	switch err := db.cache.QueryRow("SELECT id FROM tile_type WHERE name = ?", tileType).Scan(&id); err {
	case sql.ErrNoRows:
		return nil, false, nil
	case nil:
	default:
		return nil, false, err
	}

	file := fmt.Sprintf("cache:%s", tileType)
	tables := &segbitsTables{
		segbits: make(map[bitstream.BlockType][]tableLine),
	}

	if err := db.cachedSegbits(id, file, tables); err != nil {
		return nil, false, err
	}
	if err := db.cachedPseudoPips(id, file, tables); err != nil {
		return nil, false, err
	}

	return tables, true, nil
}

func (db *Database) cachedSegbits(id int64, file string, tables *segbitsTables) error {
	rows, err := db.cache.Query("SELECT block_type, line, text FROM segbit WHERE tile_type_id = ? ORDER BY block_type, line", id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var bt int
		line := tableLine{file: file}
		if err := rows.Scan(&bt, &line.num, &line.text); err != nil {
			return err
		}
		if !bitstream.BlockType(bt).Valid() {
			return &DatabaseError{File: file, Line: line.num, Err: fmt.Errorf("%w: %d", bitstream.ErrBlockType, bt)}
		}
		tables.segbits[bitstream.BlockType(bt)] = append(tables.segbits[bitstream.BlockType(bt)], line)
	}
	return rows.Err()
}

func (db *Database) cachedPseudoPips(id int64, file string, tables *segbitsTables) error {
	rows, err := db.cache.Query("SELECT line, text FROM ppip WHERE tile_type_id = ? ORDER BY line", id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		line := tableLine{file: file}
		if err := rows.Scan(&line.num, &line.text); err != nil {
			return err
		}
		tables.ppips = append(tables.ppips, line)
	}
	return rows.Err()
}

func (db *Database) storeTables(tileType string, tables *segbitsTables) error {
	tx, err := db.cache.Begin()
	if err != nil {
		return err
	}

	result, err := tx.Exec("INSERT INTO tile_type (name) VALUES (?)", tileType)
	if err != nil {
		tx.Rollback()
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, bt := range bitstream.BlockTypes {
		for _, line := range tables.segbits[bt] {
			if _, err := tx.Exec("INSERT INTO segbit (tile_type_id, block_type, line, text) VALUES (?, ?, ?, ?)", id, int(bt), line.num, line.text); err != nil {
				tx.Rollback()
				return err
			}
		}
	}

	for _, line := range tables.ppips {
		if _, err := tx.Exec("INSERT INTO ppip (tile_type_id, line, text) VALUES (?, ?, ?)", id, line.num, line.text); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// tableTileTypes lists the tile types with at least one table in the
// database directory
func (db *Database) tableTileTypes() ([]string, error) {
	files, err := ioutil.ReadDir(db.root)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasSuffix(name, tableSuffix) {
			continue
		}
		name = strings.TrimSuffix(name, tableSuffix)

		switch {
		case strings.HasPrefix(name, segbitsPrefix):
			name = strings.TrimPrefix(name, segbitsPrefix)
			for _, suffix := range blockTypeSuffix {
				if suffix != "" {
					name = strings.TrimSuffix(name, suffix)
				}
			}
		case strings.HasPrefix(name, ppipsPrefix):
			name = strings.TrimPrefix(name, ppipsPrefix)
		default:
			continue
		}
		set[strings.ToUpper(name)] = struct{}{}
	}

	tileTypes := make([]string, 0, len(set))
	for tt := range set {
		tileTypes = append(tileTypes, tt)
	}
	sort.Strings(tileTypes)
	return tileTypes, nil
}

// ImportCache replaces the content of the cache with every table in the
// database directory, returning the number of tile types imported. Tables
// are validated before they are stored.
func (db *Database) ImportCache() (int, error) {
	if db.cache == nil {
		return 0, errors.New("no cache configured")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tileTypes, err := db.tableTileTypes()
	if err != nil {
		return 0, err
	}

	if _, err = db.cache.Exec("DELETE FROM segbit"); err != nil {
		return 0, err
	}

	if _, err = db.cache.Exec("DELETE FROM ppip"); err != nil {
		return 0, err
	}

	if _, err = db.cache.Exec("DELETE FROM tile_type"); err != nil {
		return 0, err
	}

	for _, tt := range tileTypes {
		tables, err := db.readTables(tt)
		if err != nil {
			return 0, err
		}
		if _, err := newTileSegbits(tt, tables); err != nil {
			return 0, err
		}
		if err := db.storeTables(tt, tables); err != nil {
			return 0, err
		}
		db.cfg.logger.Printf("Imported %s\n", tt)
	}

	return len(tileTypes), nil
}
