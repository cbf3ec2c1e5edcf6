package spreadsheet

import (
	"encoding/json"
	"fmt"
	"io"
)

// workbookDoc mirrors spec §6's exact save format:
// {"sheets": [{"name": string, "cell-contents": {"A1": string, ...}}, ...]}
type workbookDoc struct {
	Sheets []sheetDoc `json:"sheets"`
}

type sheetDoc struct {
	Name         string          `json:"name"`
	CellContents json.RawMessage `json:"cell-contents"`
}

// SaveToStream writes the workbook's current contents as JSON (spec §6):
// only non-empty cells are stored, and contents are the exact input
// string, not the evaluated value, so save→load round-trips exactly.
func (e *Engine) SaveToStream(w io.Writer) error {
	doc := workbookDoc{}
	for _, name := range e.store.ListSheets() {
		sheet, _ := e.store.Sheet(name)
		contents := make(map[string]string)
		for _, cr := range sheet.CellKeys() {
			cell, ok := sheet.getCell(cr.Col, cr.Row)
			if !ok || cell.Contents == nil {
				continue
			}
			contents[formatA1(cr.Col, cr.Row, false, false)] = *cell.Contents
		}
		raw, err := json.Marshal(contents)
		if err != nil {
			return WrapEngineError(ErrCodeMalformedInput, "encoding sheet "+name, err)
		}
		doc.Sheets = append(doc.Sheets, sheetDoc{Name: name, CellContents: raw})
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return WrapEngineError(ErrCodeMalformedInput, "writing workbook", err)
	}
	return nil
}

// LoadFromStream replaces the engine's contents with those decoded from
// r. Sheets are created in the listed order; cells are applied as one
// scheduler batch per sheet to amortize graph work (spec §6). Duplicate
// sheet names, malformed keys, or non-string contents fail the load
// with a structured EngineError before any sheet is created, leaving
// the engine's prior state untouched.
func (e *Engine) LoadFromStream(r io.Reader) error {
	var doc workbookDoc
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return WrapEngineError(ErrCodeMalformedInput, "decoding workbook", err)
	}

	type parsedSheet struct {
		name     string
		contents map[string]string
	}
	seen := make(map[string]struct{}, len(doc.Sheets))
	parsed := make([]parsedSheet, 0, len(doc.Sheets))
	for _, sd := range doc.Sheets {
		if sd.Name == "" {
			return NewEngineError(ErrCodeMalformedInput, "sheet with empty name")
		}
		k := sheetKey(sd.Name)
		if _, dup := seen[k]; dup {
			return NewEngineError(ErrCodeDuplicateSheet, "duplicate sheet name in document: "+sd.Name)
		}
		seen[k] = struct{}{}

		contents := make(map[string]string)
		if len(sd.CellContents) > 0 {
			var raw map[string]interface{}
			if err := json.Unmarshal(sd.CellContents, &raw); err != nil {
				return WrapEngineError(ErrCodeMalformedInput, "decoding cell-contents for "+sd.Name, err)
			}
			for loc, v := range raw {
				if _, _, _, _, ok := ParseCellAddress(loc); !ok {
					return NewEngineError(ErrCodeMalformedInput, fmt.Sprintf("malformed cell key %q in sheet %s", loc, sd.Name))
				}
				s, ok := v.(string)
				if !ok {
					return NewEngineError(ErrCodeMalformedInput, fmt.Sprintf("non-string contents for %q in sheet %s", loc, sd.Name))
				}
				contents[loc] = s
			}
		}
		parsed = append(parsed, parsedSheet{name: sd.Name, contents: contents})
	}

	fresh := NewEngine(WithLogger(e.log), WithFunctionRegistry(e.registry))
	for _, ps := range parsed {
		if err := fresh.CreateSheet(ps.name); err != nil {
			return err
		}
		batch := make([]CellContentChange, 0, len(ps.contents))
		for loc, text := range ps.contents {
			col, row, _, _, _ := ParseCellAddress(loc)
			t := text
			batch = append(batch, CellContentChange{Sheet: ps.name, Col: col, Row: row, Contents: &t})
		}
		if len(batch) > 0 {
			if _, err := fresh.SetCellContentsBatch(batch); err != nil {
				return err
			}
		}
	}

	*e = *fresh
	return nil
}
