package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags of s and reports failures as kind.
func validateStruct(kind error, operation string, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		messages := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			if fe.Param() != "" {
				messages = append(messages, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		}
		return NewKindError(kind, operation, errors.New(strings.Join(messages, "; ")))
	}
	return NewKindError(kind, operation, err)
}
