package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"cleaning-schedule-backend/internal/apperr"
	"cleaning-schedule-backend/internal/model"
)

// Document is the raw content of a source file: plain text for PDFs, a header
// plus rows for spreadsheets.
type Document struct {
	Kind   model.SourceType
	Text   string
	Header []string
	Rows   [][]string
}

// Classify maps a declared MIME type to a source type. Generic or missing
// MIME types fall back to the file extension.
func Classify(mimeType, filename string) model.SourceType {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "pdf"):
		return model.SourcePDF
	case strings.Contains(m, "spreadsheet"), strings.Contains(m, "excel"):
		return model.SourceXLSX
	case strings.Contains(m, "csv"):
		return model.SourceCSV
	}

	if m == "" || m == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".pdf":
			return model.SourcePDF
		case ".xlsx", ".xlsm":
			return model.SourceXLSX
		case ".csv":
			return model.SourceCSV
		}
	}
	return model.SourceAPI
}

// Extract reads data as the given source type. It returns early with the
// context error when ctx is done; the extraction goroutine is left to finish
// on its own since the readers are not cancellable.
func Extract(ctx context.Context, kind model.SourceType, data []byte) (*Document, error) {
	type result struct {
		doc *Document
		err error
	}
	done := make(chan result, 1)
	go func() {
		doc, err := extract(kind, data)
		done <- result{doc, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", apperr.ErrExtraction, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrExtraction, r.err)
		}
		return r.doc, nil
	}
}

func extract(kind model.SourceType, data []byte) (doc *Document, err error) {
	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("unreadable %s document: %v", kind, r)
		}
	}()

	switch kind {
	case model.SourcePDF:
		text, err := pdfText(data)
		if err != nil {
			return nil, err
		}
		return &Document{Kind: kind, Text: text}, nil
	case model.SourceXLSX:
		header, rows, err := xlsxRows(data)
		if err != nil {
			return nil, err
		}
		return &Document{Kind: kind, Header: header, Rows: rows}, nil
	case model.SourceCSV:
		header, rows, err := csvRows(data)
		if err != nil {
			return nil, err
		}
		return &Document{Kind: kind, Header: header, Rows: rows}, nil
	}
	return nil, fmt.Errorf("unsupported source type %q", kind)
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, line := range pageLines(p.Content().Text) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// pageLines rebuilds the visual lines of a page from positioned glyphs.
// Glyphs sharing a baseline form one line, read top to bottom and left to
// right. A horizontal gap wider than a quarter of the font size between two
// glyphs becomes a space, which separates cells placed with Td or Tm.
func pageLines(glyphs []pdf.Text) []string {
	type row struct {
		y      float64
		glyphs []pdf.Text
	}
	var rows []*row
	byBaseline := make(map[int64]*row)
	for _, g := range glyphs {
		if g.S == "\n" || g.S == "\r" {
			continue
		}
		key := int64(math.Round(g.Y))
		r, ok := byBaseline[key]
		if !ok {
			r = &row{y: g.Y}
			byBaseline[key] = r
			rows = append(rows, r)
		}
		r.glyphs = append(r.glyphs, g)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		// Stable so glyphs of fonts without width tables keep stream order.
		sort.SliceStable(r.glyphs, func(i, j int) bool { return r.glyphs[i].X < r.glyphs[j].X })

		var b strings.Builder
		end := math.Inf(-1)
		for _, g := range r.glyphs {
			if b.Len() > 0 && g.X-end > 0.25*g.FontSize {
				b.WriteByte(' ')
			}
			b.WriteString(g.S)
			end = math.Max(end, g.X+g.W)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func xlsxRows(data []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	// Raw values keep dates as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return splitHeader(rows)
}

func csvRows(data []byte) ([]string, [][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if semicolonSeparated(data) {
		r.Comma = ';'
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return splitHeader(rows)
}

// semicolonSeparated detects the separator spreadsheet tools use in pt-BR locales.
func semicolonSeparated(data []byte) bool {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	return bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(","))
}

func splitHeader(rows [][]string) ([]string, [][]string, error) {
	if len(rows) == 0 {
		return nil, nil, errors.New("document has no header row")
	}
	return rows[0], rows[1:], nil
}
