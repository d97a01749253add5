package prjxray

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTilegrid = `{
	"FOO_X0Y0": {
		"type": "FOO",
		"grid_x": 0,
		"grid_y": 0,
		"sites": {"SLICE_X0Y0": "SLICEL"},
		"bits": {
			"CLB_IO_CLK": {"baseaddr": "0x00000010", "frames": 2, "offset": 0, "words": 1}
		}
	},
	"CLBLL_L_X2Y10": {
		"type": "CLBLL_L",
		"grid_x": 2,
		"grid_y": 10,
		"clock_region": "X0Y0",
		"bits": {
			"CLB_IO_CLK": {"baseaddr": "0x00020000", "frames": 36, "offset": 0, "words": 2}
		}
	},
	"CLBLL_L_X2Y11": {
		"type": "CLBLL_L",
		"grid_x": 2,
		"grid_y": 11,
		"clock_region": "X0Y0",
		"bits": {
			"CLB_IO_CLK": {"baseaddr": "0x00020000", "frames": 36, "offset": 2, "words": 2}
		}
	},
	"PLL_UPPER_X5Y0": {
		"type": "PLL_UPPER",
		"grid_x": 5,
		"grid_y": 0,
		"bits": {
			"CLB_IO_CLK": {
				"baseaddr": "0x00040000", "frames": 30, "offset": 10, "words": 2,
				"alias": {"type": "CMT_DRP", "start_offset": 0, "sites": {"PLLE2_ADV": "SITE_A"}}
			}
		}
	},
	"PLL_LOWER_X5Y1": {
		"type": "PLL_LOWER",
		"grid_x": 5,
		"grid_y": 1,
		"bits": {
			"CLB_IO_CLK": {
				"baseaddr": "0x00040000", "frames": 30, "offset": 12, "words": 2,
				"alias": {"type": "CMT_DRP", "start_offset": 2, "sites": {"PLLE2_ADV": "SITE_B"}}
			}
		}
	},
	"BRAM_L_X6Y0": {
		"type": "BRAM_L",
		"grid_x": 6,
		"grid_y": 0,
		"bits": {
			"CLB_IO_CLK": {"baseaddr": "0x00000100", "frames": 28, "offset": 0, "words": 10},
			"BLOCK_RAM": {"baseaddr": "0x00800000", "frames": 128, "offset": 0, "words": 10}
		}
	},
	"EMPTY_X7Y0": {
		"type": "EMPTY",
		"grid_x": 7,
		"grid_y": 0,
		"bits": {
			"CLB_IO_CLK": {"baseaddr": "0x00000200", "frames": 2, "offset": 0, "words": 1}
		}
	}
}`

var testTables = map[string]string{
	"segbits_foo.db": `# FOO tile
FOO.BAR 00_00 !00_01
FOO.BAZ 00_01 !00_00
FOO.ZERO !00_02
FOO.VEC[0] 01_04
FOO.VEC[1] 01_05
`,
	"ppips_foo.db": `FOO.PASS always
`,
	"segbits_clbll_l.db": `CLBLL_L.SLICEL_X0.ALUT.INIT[00] 00_00
CLBLL_L.SLICEL_X0.ALUT.INIT[01] 00_01
CLBLL_L.SLICEL_X0.FFSYNC 01_05

CLBLL_L.SLICEL_X0.CEUSEDMUX 35_63 !34_10
`,
	"segbits_cmt_drp.db": `CMT_DRP.SITE_A.REG0[0] 00_00
CMT_DRP.SITE_A.REG0[1] 00_01
CMT_DRP.SITE_B.REG1[0] 00_64
`,
	"segbits_pll_upper.db": `PLL_UPPER.OWN 00_05
`,
	"segbits_bram_l.db": `BRAM_L.RAMB18_Y0.IN_USE 27_100
`,
	"segbits_bram_l.block_ram.db": `BRAM_L.RAMB18_Y0.INIT_00[0] 00_00
BRAM_L.RAMB18_Y0.INIT_00[1] 00_01
`,
}

// testFeatures can all be enabled together
var testFeatures = []string{
	"BRAM_L_X6Y0.RAMB18_Y0.INIT_00[0]",
	"BRAM_L_X6Y0.RAMB18_Y0.INIT_00[1]",
	"BRAM_L_X6Y0.RAMB18_Y0.IN_USE",
	"CLBLL_L_X2Y10.SLICEL_X0.ALUT.INIT[0]",
	"CLBLL_L_X2Y10.SLICEL_X0.ALUT.INIT[1]",
	"CLBLL_L_X2Y10.SLICEL_X0.CEUSEDMUX",
	"CLBLL_L_X2Y10.SLICEL_X0.FFSYNC",
	"CLBLL_L_X2Y11.SLICEL_X0.ALUT.INIT[0]",
	"CLBLL_L_X2Y11.SLICEL_X0.CEUSEDMUX",
	"CLBLL_L_X2Y11.SLICEL_X0.FFSYNC",
	"FOO_X0Y0.BAR",
	"FOO_X0Y0.VEC[0]",
	"FOO_X0Y0.VEC[1]",
	"PLL_LOWER_X5Y1.PLLE2_ADV.REG1[0]",
	"PLL_UPPER_X5Y0.OWN",
	"PLL_UPPER_X5Y0.PLLE2_ADV.REG0[0]",
	"PLL_UPPER_X5Y0.PLLE2_ADV.REG0[1]",
}

func writeTestDatabase(t *testing.T) string {
	dir, err := ioutil.TempDir("", "prjxray")
	require.NoError(t, err)

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, tilegridFilename), []byte(testTilegrid), 0644))
	for name, content := range testTables {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	return dir
}

func openTestDatabase(t *testing.T, opts ...Option) (*Database, func()) {
	dir := writeTestDatabase(t)

	db, err := NewDatabase(dir, opts...)
	if err != nil {
		os.RemoveAll(dir)
		require.NoError(t, err)
	}

	return db, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}
