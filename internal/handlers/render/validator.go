package render

import (
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/numbermart/internal/models"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(useJSONTagNames)
	_ = v.RegisterValidation("ledgerkind", validateLedgerKind)
	_ = v.RegisterValidation("capability", validateCapability)
	return v
}

// Report fields by their json names instead of struct names
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func validateLedgerKind(fl validator.FieldLevel) bool {
	return slices.Contains(models.LedgerKinds, models.LedgerKind(fl.Field().String()))
}

func validateCapability(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return len(models.ParseCapabilitySet([]string{name}).Strings()) == 1
}
