package instruments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha15-sentry/pkg/types"
)

const masterlistCSV = `token,symbol,name,expiry,strike,lotsize,instrumenttype,exch_seg,tick_size
52345.0,RELIANCE28AUG25FUT,RELIANCE,28AUG2025,-1.0,500,FUTSTK,NFO,10.0
52360,TCS28AUG25FUT,TCS,28AUG2025,-1.0,175,FUTSTK,NFO,5.0
,BROKEN28AUG25FUT,BROKEN,28AUG2025,-1.0,100,FUTSTK,NFO,5.0
52399,ZERO28AUG25FUT,ZERO,28AUG2025,-1.0,100,FUTSTK,NFO,0
52400,BADTICK28AUG25FUT,BADTICK,28AUG2025,-1.0,100,FUTSTK,NFO,abc
52361,TCS28AUG25FUT,TCS,28AUG2025,-1.0,175,FUTSTK,NFO,5.0
52370,INFY28AUG25FUT,INFY,28AUG2025,-1.0,400,FUTSTK,,5.0
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_CSVSkipsMalformedRows(t *testing.T) {
	path := writeFile(t, "futures_masterlist.csv", masterlistCSV)

	got, err := Load(types.InstrumentConfig{File: path, Exchange: "NFO"})
	require.NoError(t, err)

	assert.Equal(t, []types.Instrument{
		{Symbol: "RELIANCE28AUG25FUT", Token: "52345", TickSize: 10, Exchange: "NFO"},
		{Symbol: "TCS28AUG25FUT", Token: "52360", TickSize: 5, Exchange: "NFO"},
		{Symbol: "INFY28AUG25FUT", Token: "52370", TickSize: 5, Exchange: "NFO"},
	}, got)
}

func TestLoad_CSVFilterBySymbols(t *testing.T) {
	path := writeFile(t, "futures_masterlist.csv", masterlistCSV)

	got, err := Load(types.InstrumentConfig{
		File:     path,
		Exchange: "NFO",
		Symbols:  []string{"INFY28AUG25FUT", "TCS28AUG25FUT", "MISSING28AUG25FUT"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 保持文件顺序
	assert.Equal(t, "TCS28AUG25FUT", got[0].Symbol)
	assert.Equal(t, "INFY28AUG25FUT", got[1].Symbol)
}

func TestLoad_CSVMissingColumn(t *testing.T) {
	path := writeFile(t, "bad.csv", "symbol,token\nTCS,1\n")

	_, err := Load(types.InstrumentConfig{File: path})
	assert.ErrorContains(t, err, "tick_size")
}

func TestLoad_NothingLeft(t *testing.T) {
	path := writeFile(t, "futures_masterlist.csv", masterlistCSV)

	_, err := Load(types.InstrumentConfig{File: path, Symbols: []string{"NOPE"}})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "instruments.yaml", `
instruments:
  - symbol: SBIN28AUG25FUT
    token: "52400"
    tick_size: 5
  - symbol: HDFCBANK28AUG25FUT
    token: "52410"
    tick_size: 10
    exchange: BFO
  - symbol: NOTOKEN28AUG25FUT
    tick_size: 5
`)

	got, err := Load(types.InstrumentConfig{File: path, Exchange: "NFO"})
	require.NoError(t, err)
	assert.Equal(t, []types.Instrument{
		{Symbol: "SBIN28AUG25FUT", Token: "52400", TickSize: 5, Exchange: "NFO"},
		{Symbol: "HDFCBANK28AUG25FUT", Token: "52410", TickSize: 10, Exchange: "BFO"},
	}, got)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(types.InstrumentConfig{File: filepath.Join(t.TempDir(), "none.csv")})
	assert.Error(t, err)
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "2885", normalizeToken("2885.0"))
	assert.Equal(t, "2885", normalizeToken(" 2885 "))
	assert.Equal(t, "ABC", normalizeToken("ABC"))
	assert.Equal(t, "12.5", normalizeToken("12.5"))
}
