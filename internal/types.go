package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type Authority string

const (
	AuthoritySINAPI Authority = "sinapi"
	AuthoritySICRO  Authority = "sicro"
	AuthorityCPOS   Authority = "cpos"
	AuthorityEMOP   Authority = "emop"
	AuthoritySICONV Authority = "siconv"
	AuthorityCustom Authority = "custom"
)

var KnownAuthorities = []Authority{
	AuthoritySINAPI,
	AuthoritySICRO,
	AuthorityCPOS,
	AuthorityEMOP,
	AuthoritySICONV,
	AuthorityCustom,
}

func (a Authority) Known() bool {
	for _, k := range KnownAuthorities {
		if k == a {
			return true
		}
	}
	return false
}

// Field is a canonical column every authority layout is mapped onto.
type Field string

const (
	FieldCode         Field = "code"
	FieldDescription  Field = "description"
	FieldUnit         Field = "unit"
	FieldQuantity     Field = "quantity"
	FieldUnitPrice    Field = "unit_price"
	FieldOverheadRate Field = "overhead_rate"
	FieldBaseDate     Field = "base_date"
)

var Fields = []Field{
	FieldCode,
	FieldDescription,
	FieldUnit,
	FieldQuantity,
	FieldUnitPrice,
	FieldOverheadRate,
	FieldBaseDate,
}

func (f Field) Known() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

type RawRow struct {
	Sheet        string
	RowIndex     int
	Code         string
	Description  string
	Unit         string
	BaseDate     string
	Quantity     *decimal.Decimal
	UnitPrice    *decimal.Decimal
	OverheadRate *decimal.Decimal
	Missing      []Field
	Aux          map[string]string
	Unloaded     bool
}

type MergedRow struct {
	RawRow
	Sources []string
}

type ServiceRecord struct {
	Authority     Authority
	OriginFile    string
	Code          string
	BaseDate      time.Time
	Description   string
	Unit          string
	TaxLoaded     bool
	UnitValue     *decimal.Decimal
	OverheadValue *decimal.Decimal
	OverheadRate  *decimal.Decimal
	Quantity      *decimal.Decimal
	Aux           map[string]string
	Sheet         string
	Row           int
}

// Key identifies a record for uniqueness inside a batch and in storage.
func (r ServiceRecord) Key() string {
	date := ""
	if !r.BaseDate.IsZero() {
		date = r.BaseDate.Format(time.DateOnly)
	}
	return string(r.Authority) + "|" + r.Code + "|" + date
}

type Violation struct {
	Rule    string `json:"rule"`
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

type ValidationOutcome struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

func (o *ValidationOutcome) Add(v Violation) {
	o.Violations = append(o.Violations, v)
	o.Valid = false
}

type RecordOutcome struct {
	Record  ServiceRecord
	Outcome ValidationOutcome
}

type MatchCandidate struct {
	Authority Authority `json:"authority"`
	Score     float64   `json:"score"`
	Fields    int       `json:"fields"`
}

type MatchResult struct {
	Authority  Authority        `json:"authority"`
	Confidence float64          `json:"confidence"`
	Fallback   bool             `json:"fallback"`
	Sheet      string           `json:"sheet"`
	HeaderRow  int              `json:"header_row"`
	Candidates []MatchCandidate `json:"candidates"`
}

type WorkbookStatus string

const (
	StatusProcessed WorkbookStatus = "processed"
	StatusFailed    WorkbookStatus = "failed"
	StatusCancelled WorkbookStatus = "cancelled"
)

type WorkbookSummary struct {
	Sheets            int `json:"sheets"`
	RowsExtracted     int `json:"rowsExtracted"`
	CellParseFailures int `json:"cellParseFailures"`
	Merged            int `json:"merged"`
	JoinDropped       int `json:"joinDropped"`
	Duplicates        int `json:"duplicates"`
	DerivationSkipped int `json:"derivationSkipped"`
	Accepted          int `json:"accepted"`
	Rejected          int `json:"rejected"`
}
