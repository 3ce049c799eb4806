package config

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

func NewValidator() (*validator.Validate, error) {
	v := validator.New()

	// postgres connection strings may be urls or keyword/value DSNs, only urls are checked
	err := v.RegisterValidation("dburl", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" || !strings.Contains(value, "://") {
			return true
		}
		u, err := url.Parse(value)
		if err != nil {
			return false
		}
		return u.Scheme == "postgres" || u.Scheme == "postgresql"
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}
