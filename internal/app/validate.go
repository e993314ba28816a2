package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so field errors match the request body.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkPayload runs the struct tags of payload and returns the failures
// keyed by JSON field name.
func checkPayload(v *validator.Validate, payload any) fieldErrors {
	fields := fieldErrors{}
	err := v.Struct(payload)
	if err == nil {
		return fields
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		fields.add(nonFieldErrors, err.Error())
		return fields
	}
	for _, fe := range invalid {
		fields.add(fe.Field(), validationMessage(fe))
	}
	return fields
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "email":
		return "Enter a valid email address."
	case "url", "http_url":
		return "Enter a valid URL."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		if fe.Param() == "1" {
			return "This field may not be blank."
		}
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	default:
		return "Invalid value."
	}
}

// pkRef is a foreign key as sent by a client. It keeps enough of the raw
// value to report missing, null and mistyped keys separately.
type pkRef struct {
	Set   bool
	Null  bool
	Valid bool
	Value int64
	kind  string
}

func ref(id int64) pkRef {
	return pkRef{Set: true, Valid: true, Value: id}
}

func (p *pkRef) UnmarshalJSON(data []byte) error {
	*p = pkRef{Set: true}
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		p.Null = true
		return nil
	}
	var number int64
	if err := json.Unmarshal(data, &number); err == nil {
		p.Value, p.Valid = number, true
		return nil
	}
	// Numeric strings are accepted as keys.
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if number, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			p.Value, p.Valid = number, true
			return nil
		}
		p.kind = "str"
		return nil
	}
	switch data[0] {
	case '[':
		p.kind = "list"
	case '{':
		p.kind = "dict"
	case 't', 'f':
		p.kind = "bool"
	default:
		p.kind = "float"
	}
	return nil
}

// resolveRef loads the row a key points at. Client mistakes are recorded in
// fields and reported as found=false; only storage failures return an error.
func resolveRef[T any](ctx context.Context, fields fieldErrors, name string, key pkRef, required bool, get func(context.Context, int64) (T, error)) (item T, found bool, err error) {
	switch {
	case !key.Set:
		if required {
			fields.add(name, msgRequired)
		}
		return item, false, nil
	case key.Null:
		fields.add(name, "This field may not be null.")
		return item, false, nil
	case !key.Valid:
		fields.add(name, fmt.Sprintf("Incorrect type. Expected pk value, received %s.", key.kind))
		return item, false, nil
	}
	item, err = get(ctx, key.Value)
	if errors.Is(err, sql.ErrNoRows) {
		fields.add(name, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", key.Value))
		return item, false, nil
	}
	if err != nil {
		return item, false, fmt.Errorf("load %s: %w", name, err)
	}
	return item, true, nil
}

type signUpPayload struct {
	Email           string `json:"email" validate:"required,email,max=100"`
	Password        string `json:"password" validate:"required"`
	Name            string `json:"name" validate:"required,max=100"`
	ProfileImageURL string `json:"profile_image_url" validate:"omitempty,url,max=200"`
}

type signInPayload struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type googleSignInPayload struct {
	OAuthToken string `json:"o_auth_token" validate:"required"`
}

type userPatch struct {
	Name            *string `json:"name" validate:"omitnil,min=1,max=100"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url,max=200"`
	Password        *string `json:"password" validate:"omitnil,min=1"`
}

type articlePayload struct {
	Subject     string `json:"subject" validate:"required,max=512"`
	Description string `json:"description" validate:"max=512"`
	Body        string `json:"body"`
}

type articlePatch struct {
	Subject     *string `json:"subject" validate:"omitnil,min=1,max=512"`
	Description *string `json:"description" validate:"omitnil,max=512"`
	Body        *string `json:"body"`
}

type notePayload struct {
	Article  pkRef  `json:"article" validate:"-"`
	Contents string `json:"contents"`
}

type notePatch struct {
	Article  pkRef   `json:"article" validate:"-"`
	Contents *string `json:"contents"`
}

type connectionPayload struct {
	Article   pkRef  `json:"article" validate:"-"`
	LeftNote  pkRef  `json:"left_note" validate:"-"`
	RightNote pkRef  `json:"right_note" validate:"-"`
	Reason    string `json:"reason"`
}

type connectionPatch struct {
	Article   pkRef   `json:"article" validate:"-"`
	LeftNote  pkRef   `json:"left_note" validate:"-"`
	RightNote pkRef   `json:"right_note" validate:"-"`
	Reason    *string `json:"reason"`
}
