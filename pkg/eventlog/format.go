// Package eventlog loads event logs from files, S3 objects and SQL queries
// into model.Event values.
//
// Loading is the only asynchronous boundary of procflow: everything in here
// takes a context and may block, while the graph packages never do.
package eventlog

import (
	"path/filepath"
	"strings"
)

// Format is a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatJSONL
	FormatCSV
	FormatXLSX
	FormatParquet
	FormatXES
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONL:
		return "jsonl"
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	case FormatXES:
		return "xes"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "jsonl", "ndjson":
		return FormatJSONL
	case "csv", "tsv":
		return FormatCSV
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	case "xes":
		return FormatXES
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format of a path or object key from its extension.
func DetectFormat(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return ParseFormat(ext)
}
