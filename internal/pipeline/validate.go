package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricenorm/internal"
	"pricenorm/internal/registry"
	"pricenorm/internal/util"
)

const (
	RuleCodeRequired        = "code_required"
	RuleCodePattern         = "code_pattern"
	RuleDescriptionRequired = "description_required"
	RuleUnitValuePositive   = "unit_value_positive"
	RuleUnitValueRange      = "unit_value_range"
	RuleBaseDateRequired    = "base_date_required"
	RuleBaseDateFuture      = "base_date_future"
	RuleDuplicateKey        = "duplicate_key"
)

var (
	genericCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./_-]*$`)
	maxUnitValue       = decimal.RequireFromString("999999999.99")
)

type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate checks a record against its profile and the batch reference
// period. It reports every violation and never changes the record.
func (v *Validator) Validate(rec internal.ServiceRecord, p *registry.Profile, reference time.Time) internal.ValidationOutcome {
	out := internal.ValidationOutcome{Valid: true}

	switch {
	case strings.TrimSpace(rec.Code) == "":
		out.Add(internal.Violation{Rule: RuleCodeRequired, Field: internal.FieldCode, Message: "service code is empty"})
	case !codePattern(p).MatchString(rec.Code):
		out.Add(internal.Violation{
			Rule:    RuleCodePattern,
			Field:   internal.FieldCode,
			Message: fmt.Sprintf("service code %q does not match the %s code format", rec.Code, p.Name),
		})
	}

	if strings.TrimSpace(rec.Description) == "" {
		out.Add(internal.Violation{Rule: RuleDescriptionRequired, Field: internal.FieldDescription, Message: "description is empty"})
	}

	switch {
	case rec.UnitValue == nil:
		out.Add(internal.Violation{Rule: RuleUnitValuePositive, Field: internal.FieldUnitPrice, Message: "unit value is missing or unreadable"})
	case !rec.UnitValue.IsPositive():
		out.Add(internal.Violation{
			Rule:    RuleUnitValuePositive,
			Field:   internal.FieldUnitPrice,
			Message: fmt.Sprintf("unit value %s must be greater than zero", rec.UnitValue.StringFixed(moneyPlaces)),
		})
	case rec.UnitValue.GreaterThan(maxUnitValue):
		out.Add(internal.Violation{
			Rule:    RuleUnitValueRange,
			Field:   internal.FieldUnitPrice,
			Message: fmt.Sprintf("unit value %s exceeds %s", rec.UnitValue.StringFixed(moneyPlaces), maxUnitValue.StringFixed(moneyPlaces)),
		})
	}
	if rec.OverheadValue != nil && rec.OverheadValue.GreaterThan(maxUnitValue) {
		out.Add(internal.Violation{
			Rule:    RuleUnitValueRange,
			Field:   internal.FieldOverheadRate,
			Message: fmt.Sprintf("overhead value %s exceeds %s", rec.OverheadValue.StringFixed(moneyPlaces), maxUnitValue.StringFixed(moneyPlaces)),
		})
	}

	if reference.IsZero() {
		reference = v.now()
	}
	switch {
	case rec.BaseDate.IsZero():
		out.Add(internal.Violation{Rule: RuleBaseDateRequired, Field: internal.FieldBaseDate, Message: "base date is missing or unreadable"})
	case util.MonthStart(rec.BaseDate).After(util.MonthStart(reference)):
		out.Add(internal.Violation{
			Rule:    RuleBaseDateFuture,
			Field:   internal.FieldBaseDate,
			Message: fmt.Sprintf("base date %s is after the reference period %s", rec.BaseDate.Format("2006-01"), reference.Format("2006-01")),
		})
	}

	return out
}

func codePattern(p *registry.Profile) *regexp.Regexp {
	if p != nil && p.CodePattern != nil {
		return p.CodePattern
	}
	return genericCodePattern
}

func duplicateViolation(rec internal.ServiceRecord) internal.Violation {
	return internal.Violation{
		Rule:    RuleDuplicateKey,
		Field:   internal.FieldCode,
		Message: fmt.Sprintf("duplicate of an earlier record for %s code %s at %s", rec.Authority, rec.Code, rec.BaseDate.Format(time.DateOnly)),
	}
}
