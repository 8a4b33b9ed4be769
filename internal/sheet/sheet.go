// Package sheet decodes the tabular JSON documents published by the content
// origin: single sheets ({":type":"sheet","total":N,"data":[...]}) and
// multi-sheets where each named sheet sits under its own key.
package sheet

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeSheet      = "sheet"
	TypeMultiSheet = "multi-sheet"
)

// ErrUnknownSheetType is returned for a ":type" other than sheet or multi-sheet.
var ErrUnknownSheetType = errors.New("unknown sheet type")

// ErrSheetNotFound is returned when a multi-sheet lacks the requested sheet.
var ErrSheetNotFound = errors.New("sheet not found")

type table struct {
	Total  int               `json:"total"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
	Data   []json.RawMessage `json:"data"`
}

// Rows decodes the rows of a sheet document into T. For a multi-sheet, name
// selects the sheet. A document without ":type" but with a data array is read
// as a single sheet. When total is set and smaller than the data array only
// the first total rows are returned.
func Rows[T any](raw []byte, name string) ([]T, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode sheet: %w", err)
	}

	var kind string
	if t, ok := doc[":type"]; ok {
		if err := json.Unmarshal(t, &kind); err != nil {
			return nil, fmt.Errorf("decode sheet type: %w", err)
		}
	} else if _, ok := doc["data"]; ok {
		kind = TypeSheet
	}

	var tbl table
	switch kind {
	case TypeSheet:
		if err := json.Unmarshal(raw, &tbl); err != nil {
			return nil, fmt.Errorf("decode sheet: %w", err)
		}
	case TypeMultiSheet:
		sub, ok := doc[name]
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
		}
		if err := json.Unmarshal(sub, &tbl); err != nil {
			return nil, fmt.Errorf("decode sheet %q: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSheetType, kind)
	}

	data := tbl.Data
	if tbl.Total > 0 && tbl.Total < len(data) {
		data = data[:tbl.Total]
	}

	rows := make([]T, 0, len(data))
	for i, r := range data {
		var row T
		if err := json.Unmarshal(r, &row); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
