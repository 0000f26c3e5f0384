package parse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a normalized event attribute a spreadsheet column can map to.
type Field string

const (
	FieldVehicle     Field = "vehicle"
	FieldDate        Field = "date"
	FieldTime        Field = "time"
	FieldClass       Field = "class"
	FieldCompany     Field = "company"
	FieldService     Field = "service"
	FieldDriver      Field = "driver"
	FieldObservation Field = "observation"
)

// RequiredFields must all resolve before any row is read.
var RequiredFields = []Field{FieldVehicle, FieldDate, FieldTime}

// columnAliases lists the header spellings seen in client spreadsheets.
var columnAliases = map[Field][]string{
	FieldVehicle:     {"Nº do Veículo", "Veículo", "Prefixo", "client_vehicle_number", "vehicle", "vehicle_number"},
	FieldDate:        {"Data", "Data Viagem", "Data da Viagem", "data_viagem", "date"},
	FieldTime:        {"Hora", "Hora Viagem", "Horário", "Saída", "hora_viagem", "time"},
	FieldClass:       {"Classe", "class"},
	FieldCompany:     {"Empresa", "company"},
	FieldService:     {"Serviço", "Nº Serviço", "numero_servico", "service", "service_number"},
	FieldDriver:      {"Motorista", "driver"},
	FieldObservation: {"Observação", "Observação Cliente", "observacao_cliente", "observation"},
}

var (
	aliasIndex   = buildAliasIndex()
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	clockRe      = regexp.MustCompile(`^(\d{1,2})\s*:\s*(\d{2})(?::\d{2})?$`)
	dateLayouts  = []string{"02/01/2006", "2/1/2006", "2006-01-02", "02-01-2006", "02.01.2006"}
	rowValidator = validator.New()
)

func buildAliasIndex() map[string]Field {
	idx := make(map[string]Field)
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			idx[FoldHeader(a)] = field
		}
	}
	return idx
}

// FoldHeader strips accents, lower-cases and collapses punctuation so that
// "Nº do Veículo" and "n_do_veiculo" compare equal.
func FoldHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}
	folded = nonAlnumRe.ReplaceAllString(strings.ToLower(folded), "_")
	return strings.Trim(folded, "_")
}

// ColumnMap resolves normalized fields to column indexes.
type ColumnMap map[Field]int

// NewColumnMap resolves the header once. The first column matching a field wins.
// Missing required fields are a fatal error.
func NewColumnMap(header []string) (ColumnMap, error) {
	cm := make(ColumnMap)
	for i, h := range header {
		field, ok := aliasIndex[FoldHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cm[field]; !seen {
			cm[field] = i
		}
	}

	var missing []string
	for _, f := range RequiredFields {
		if _, ok := cm[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cm, nil
}

func (cm ColumnMap) value(row []string, f Field) string {
	i, ok := cm[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

type tabularRow struct {
	Vehicle string `validate:"required,numeric,max=10"`
	Date    string `validate:"required"`
	Time    string `validate:"required"`
}

// NormalizeRows maps spreadsheet rows to events. Row numbers in messages are
// sheet rows, the header being row 1.
func NormalizeRows(header []string, rows [][]string, grammar Grammar) (Result, error) {
	cm, err := NewColumnMap(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, row := range rows {
		rowNo := i + 2
		r := tabularRow{
			Vehicle: cm.value(row, FieldVehicle),
			Date:    cm.value(row, FieldDate),
			Time:    cm.value(row, FieldTime),
		}
		if r.Vehicle == "" {
			continue
		}
		if err := rowValidator.Struct(r); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", rowNo, describeValidation(err)))
			continue
		}

		day, month, year, err := parseDate(r.Date)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNo, err))
			continue
		}
		hour, minute, err := parseClock(r.Time)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNo, err))
			continue
		}
		ev, err := newEvent(grammar.Location, r.Vehicle, day, month, year, hour, minute)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNo, err))
			continue
		}

		ev.Class = cm.value(row, FieldClass)
		ev.Company = cm.value(row, FieldCompany)
		ev.ServiceNumber = cm.value(row, FieldService)
		ev.Driver = cm.value(row, FieldDriver)
		ev.ClientObservation = cm.value(row, FieldObservation)
		res.Events = append(res.Events, ev)
	}
	return res, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// parseDate accepts the textual layouts used by clients and Excel serial dates.
func parseDate(s string) (day, month, year int, err error) {
	for _, layout := range dateLayouts {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.Day(), int(t.Month()), t.Year(), nil
		}
	}
	if f, perr := strconv.ParseFloat(s, 64); perr == nil && f >= 1 {
		t, xerr := excelize.ExcelDateToTime(math.Floor(f), false)
		if xerr == nil {
			return t.Day(), int(t.Month()), t.Year(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("invalid date %q", s)
}

// parseClock accepts HH:mm[:ss] and Excel day fractions (optionally carried by
// a full serial date-time).
func parseClock(s string) (hour, minute int, err error) {
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute, nil
	}
	if f, perr := strconv.ParseFloat(s, 64); perr == nil && f >= 0 {
		_, frac := math.Modf(f)
		total := int(math.Round(frac * 24 * 60))
		if total == 24*60 {
			total = 0
		}
		return total / 60, total % 60, nil
	}
	return 0, 0, fmt.Errorf("invalid time %q", s)
}
