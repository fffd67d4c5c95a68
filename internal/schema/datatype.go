package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Datatype is the declared value type of an element or attribute.
type Datatype string

const (
	TypeComplex Datatype = "complex"
	TypeString  Datatype = "string"
	TypeDecimal Datatype = "decimal"
	TypeInteger Datatype = "integer"
	TypeDate    Datatype = "date"
	TypeCode    Datatype = "code"
	TypeBoolean Datatype = "boolean"
)

const dateLayout = "2006-01-02"

var (
	decimalRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	integerRe = regexp.MustCompile(`^[+-]?\d+$`)
)

func parseDatatype(s string, hasChildren bool) (Datatype, error) {
	if s == "" {
		if hasChildren {
			return TypeComplex, nil
		}
		return TypeString, nil
	}
	switch dt := Datatype(strings.ToLower(s)); dt {
	case TypeComplex, TypeString, TypeDecimal, TypeInteger, TypeDate, TypeCode, TypeBoolean:
		return dt, nil
	}
	return "", fmt.Errorf("unknown type %q", s)
}

// conforms reports whether value is a lexically valid instance of dt.
func conforms(dt Datatype, value string) bool {
	switch dt {
	case TypeDecimal:
		return decimalRe.MatchString(value)
	case TypeInteger:
		return integerRe.MatchString(value)
	case TypeDate:
		_, err := time.Parse(dateLayout, value)
		return err == nil
	case TypeBoolean:
		switch value {
		case "true", "false", "1", "0":
			return true
		}
		return false
	default:
		return true
	}
}

func describe(dt Datatype) string {
	switch dt {
	case TypeDecimal:
		return "a decimal number"
	case TypeInteger:
		return "an integer"
	case TypeDate:
		return "a date (YYYY-MM-DD)"
	case TypeBoolean:
		return "a boolean"
	default:
		return string(dt)
	}
}
