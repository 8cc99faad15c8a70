package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/geocoder89/projecthub/internal/domain/date"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON binds and validates the body, answering 400 itself on failure.
func BindJSON(ctx *gin.Context, out any) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", parseBindError(err, out))
		return false
	}
	return true
}

func parseBindError(err error, out any) gin.H {
	root := structType(reflect.TypeOf(out))

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   fieldPath(root, fe),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return gin.H{"fields": fields}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return gin.H{"json": "invalid_json_syntax", "offset": syntaxErr.Offset}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := jsonPath(root, strings.Split(typeErr.Field, "."))
		if field == "" {
			field = typeErr.Field
		}
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	// dates arrive as YYYY-MM-DD strings and fail inside UnmarshalJSON
	if errors.Is(err, date.ErrInvalid) {
		return gin.H{"json": "invalid_date", "reason": "dates must use the YYYY-MM-DD format"}
	}

	return gin.H{"reason": err.Error()}
}

// structType peels pointers, slices and arrays down to the element type.
func structType(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}
	return nil
}

// fieldPath turns a validator namespace like "CreateUserRequest.Roles[1]"
// into the client's spelling, "roles[1]".
func fieldPath(root reflect.Type, fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if ns == "" {
		return fe.Field()
	}

	parts := strings.Split(ns, ".")
	if root != nil && len(parts) > 1 && parts[0] == root.Name() {
		parts = parts[1:]
	}
	if p := jsonPath(root, parts); p != "" {
		return p
	}
	return fe.Field()
}

// jsonPath maps Go field names to json tag names segment by segment, keeping
// index suffixes. Segments it cannot resolve are passed through.
func jsonPath(t reflect.Type, parts []string) string {
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}
		name, index := part, ""
		if k := strings.IndexByte(part, '['); k >= 0 {
			name, index = part[:k], part[k:]
		}

		var next reflect.Type
		if t != nil && t.Kind() == reflect.Struct {
			if sf, ok := t.FieldByName(name); ok {
				if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" && tag != "-" {
					name = tag
				}
				next = structType(sf.Type)
			}
		}

		out = append(out, name+index)
		t = next
	}

	return strings.Join(out, ".")
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "uuid":
		return "must be a valid UUID"
	case "gtefield":
		return "must not be before " + param
	case "dive":
		return "contains an invalid value"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
