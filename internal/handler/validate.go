package handler

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// newValidator reports fields by their query parameter name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("param"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// firstFailure returns the first failed field, preferring a missing one.
func firstFailure(err error) (validator.FieldError, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return nil, false
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return fe, true
		}
	}
	return verrs[0], true
}

func tooLong(param string) error {
	return status.Errorf(codes.InvalidArgument, msgTooLong, param)
}
