package spreadsheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "1")
	setContents(t, e, "Sheet1", "A2", "=A1+1")
	setContents(t, e, "Sheet1", "B1", "hello")

	var buf bytes.Buffer
	require.NoError(t, e.SaveToStream(&buf))

	loaded := NewEngine()
	require.NoError(t, loaded.LoadFromStream(&buf))

	require.Equal(t, []string{"Sheet1"}, loaded.ListSheets())
	require.Equal(t, "2", getValue(t, loaded, "Sheet1", "A2").Render())
	require.Equal(t, "hello", getValue(t, loaded, "Sheet1", "B1").Render())
}

func TestSaveOnlyStoresNonEmptyCells(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Sheet1"))
	setContents(t, e, "Sheet1", "A1", "1")

	var buf bytes.Buffer
	require.NoError(t, e.SaveToStream(&buf))
	require.Contains(t, buf.String(), `"A1":"1"`)
	require.NotContains(t, buf.String(), "B1")
}

func TestLoadDuplicateSheetNameFails(t *testing.T) {
	doc := `{"sheets":[{"name":"Sheet1","cell-contents":{}},{"name":"sheet1","cell-contents":{}}]}`
	e := NewEngine()
	err := e.LoadFromStream(strings.NewReader(doc))
	require.Error(t, err)
	var eerr *EngineError
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, ErrCodeDuplicateSheet, eerr.Code)
}

func TestLoadMalformedCellKeyFails(t *testing.T) {
	doc := `{"sheets":[{"name":"Sheet1","cell-contents":{"NotACell":"1"}}]}`
	e := NewEngine()
	err := e.LoadFromStream(strings.NewReader(doc))
	require.Error(t, err)
	var eerr *EngineError
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, ErrCodeMalformedInput, eerr.Code)
}

func TestLoadNonStringContentsFails(t *testing.T) {
	doc := `{"sheets":[{"name":"Sheet1","cell-contents":{"A1":42}}]}`
	e := NewEngine()
	err := e.LoadFromStream(strings.NewReader(doc))
	require.Error(t, err)
	var eerr *EngineError
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, ErrCodeMalformedInput, eerr.Code)
}

func TestFailedLoadLeavesPriorStateUntouched(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.CreateSheet("Original"))
	setContents(t, e, "Original", "A1", "99")

	badDoc := `{"sheets":[{"name":"X","cell-contents":{"bad key":"1"}}]}`
	err := e.LoadFromStream(strings.NewReader(badDoc))
	require.Error(t, err)

	require.Equal(t, []string{"Original"}, e.ListSheets())
	require.Equal(t, "99", getValue(t, e, "Original", "A1").Render())
}
