package export

import "fmt"

// Format identifies an export file type.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat maps user input to a supported format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// Column maps a row key to its printed title.
type Column struct {
	Key   string
	Title string
}

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) titles() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.Title
	}
	return out
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = row[col.Key]
	}
	return out
}
