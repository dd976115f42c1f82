// Package intake validates inbound lead submissions: schema and business
// rules, bot-trap detection, and phone normalization.
package intake

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Submission is the wire payload accepted on the lead endpoint. Unknown
// fields are rejected at decode time.
type Submission struct {
	BusinessName   string `json:"businessName" validate:"required,min=2,max=120"`
	ContactName    string `json:"contactName" validate:"required,min=2,max=80"`
	Phone          string `json:"phone" validate:"required,min=6,max=24"`
	City           string `json:"city" validate:"required,min=2,max=80"`
	Category       string `json:"category" validate:"required,oneof=salon spa clinic barbershop retail reseller other"`
	Consent        bool   `json:"consent"`
	Email          string `json:"email" validate:"omitempty,email,max=254"`
	Message        string `json:"message" validate:"omitempty,max=2000"`
	Instagram      string `json:"instagram" validate:"omitempty,max=100"`
	ReferralSource string `json:"referralSource" validate:"omitempty,max=120"`
	InitialPageURL string `json:"initialPageUrl" validate:"omitempty,max=2048"`
	CurrentPageURL string `json:"currentPageUrl" validate:"omitempty,max=2048"`

	// Website is the honeypot. Humans never see the field; a non-empty
	// value marks the submission as trapped.
	Website string `json:"website" validate:"omitempty,max=512"`
}

// Lead is the normalized record the pipeline persists. A Lead always has
// Consent true and a digits-only NormalizedPhone of at least 10 digits.
type Lead struct {
	Submission
	NormalizedPhone string
	Trapped         bool
}

// FieldErrors maps payload field names to human-readable problems.
type FieldErrors map[string]string

// Validator applies the intake rules for a given phone country prefix.
type Validator struct {
	validate    *validator.Validate
	phonePrefix string
}

// NewValidator builds a Validator. phonePrefix is the digits-only country
// code local numbers are rewritten to (e.g. "62").
func NewValidator(phonePrefix string) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// Report errors against wire field names, not Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{
		validate:    validate,
		phonePrefix: phonePrefix,
	}
}

// Validate decodes and checks a raw payload. A nil FieldErrors means the
// Lead is admissible; a trapped submission still validates so automated
// clients cannot tell they were detected.
func (v *Validator) Validate(raw []byte) (Lead, FieldErrors) {
	var sub Submission
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		return Lead{}, FieldErrors{"body": "payload is not a valid submission"}
	}

	lead := Lead{Submission: sub, Trapped: strings.TrimSpace(sub.Website) != ""}

	errs := FieldErrors{}
	if err := v.validate.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); !ok {
			return Lead{}, FieldErrors{"body": "payload is not a valid submission"}
		}
		for _, fe := range fieldErrs {
			errs[fe.Field()] = fieldMessage(fe)
		}
	}
	if !sub.Consent {
		errs["consent"] = "consent must be given"
	}

	normalized, ok := NormalizePhone(sub.Phone, v.phonePrefix)
	if !ok {
		errs["phone"] = "phone number is not valid"
	}
	lead.NormalizedPhone = normalized

	if len(errs) > 0 {
		return Lead{}, errs
	}
	return lead, nil
}

// NormalizePhone strips formatting punctuation, rewrites local numbers
// (leading zero) to the country prefix, and drops a leading plus. The
// stored form is digits only; it is valid when 10 to 15 digits long.
func NormalizePhone(raw, prefix string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '(', ')', '-', '.':
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "0") {
		s = prefix + s[1:]
	}
	if len(s) < 10 || len(s) > 15 {
		return s, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s, false
		}
	}
	return s, true
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return "value is too short"
	case "max":
		return "value is too long"
	case "oneof":
		return "value is not one of the allowed options"
	case "email":
		return "email address is not valid"
	default:
		return "value is not valid"
	}
}
