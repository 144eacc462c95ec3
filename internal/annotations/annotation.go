package annotations

import (
	"fmt"
	"strings"

	"github.com/temirov/geodetect/internal/apiclient"
)

const (
	typeOutlineValueConstant        = "outline"
	typeTrainingAreaValueConstant   = "training_area"
	typeTestingAreaValueConstant    = "testing_area"
	typeValidationAreaValueConstant = "validation_area"
	typeFieldNameConstant           = "annotation_type"
	unsupportedTypeMessageTemplate  = "unsupported value %q (expected one of %s)"
	choiceSeparatorConstant         = ", "
)

// Type names the kind of annotation stored for a training raster.
type Type string

// Annotation type enumerations.
const (
	TypeOutline        Type = Type(typeOutlineValueConstant)
	TypeTrainingArea   Type = Type(typeTrainingAreaValueConstant)
	TypeTestingArea    Type = Type(typeTestingAreaValueConstant)
	TypeValidationArea Type = Type(typeValidationAreaValueConstant)
)

// TypeChoices lists the accepted annotation types.
func TypeChoices() []string {
	return []string{typeOutlineValueConstant, typeTrainingAreaValueConstant, typeTestingAreaValueConstant, typeValidationAreaValueConstant}
}

// ParseType validates an annotation type.
func ParseType(value string) (Type, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	for _, choice := range TypeChoices() {
		if normalizedValue == choice {
			return Type(choice), nil
		}
	}
	return "", apiclient.InvalidInputError{
		FieldName: typeFieldNameConstant,
		Message:   fmt.Sprintf(unsupportedTypeMessageTemplate, value, strings.Join(TypeChoices(), choiceSeparatorConstant)),
	}
}

type bulkUploadTicket struct {
	UploadURL string               `json:"upload_url"`
	UploadID  apiclient.Identifier `json:"upload_id"`
}
