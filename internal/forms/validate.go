package forms

import (
	"fmt"
	"strconv"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
)

var fieldTypes = map[domain.FieldType]bool{
	domain.FieldText:     true,
	domain.FieldEmail:    true,
	domain.FieldTextarea: true,
	domain.FieldSelect:   true,
	domain.FieldCheckbox: true,
	domain.FieldNumber:   true,
}

func validateFields(fields []domain.Field) error {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.ID == "" {
			return domain.BadRequest(fmt.Sprintf("field %d has no id", i))
		}
		if seen[f.ID] {
			return domain.BadRequest(fmt.Sprintf("duplicate field id %q", f.ID))
		}
		seen[f.ID] = true
		if !fieldTypes[f.Type] {
			return domain.BadRequest(fmt.Sprintf("field %q has unsupported type %q", f.ID, f.Type))
		}
		if f.Width != "" && f.Width != "100%" && f.Width != "50%" {
			return domain.BadRequest(fmt.Sprintf("field %q width must be 100%% or 50%%", f.ID))
		}
	}
	return nil
}

func boolString(b bool) string { return strconv.FormatBool(b) }
func itoa(n int64) string      { return strconv.FormatInt(n, 10) }
