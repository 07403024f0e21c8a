package loader

import (
	"path/filepath"
	"strings"
)

// FileType identifies a supported tabular source format.
type FileType string

const (
	FileTypeUnknown FileType = ""
	FileTypeCSV     FileType = "csv"
	FileTypeXLSX    FileType = "xlsx"
	FileTypeXLS     FileType = "xls"
)

var extensions = map[string]FileType{
	".csv":  FileTypeCSV,
	".xlsx": FileTypeXLSX,
	".xlsm": FileTypeXLSX,
	".xls":  FileTypeXLS,
}

// DetectFileType picks the format from the file extension only. Content is
// never sniffed, so a CSV named report.xlsx fails to parse instead of being
// silently read as CSV.
func DetectFileType(name string) FileType {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Supported reports whether name has an extension the loader can read.
func Supported(name string) bool {
	return DetectFileType(name) != FileTypeUnknown
}
