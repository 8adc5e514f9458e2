package model

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"steward/internal/api"
)

var (
	slugPattern       = regexp.MustCompile(`^[\w\d-]*$`)
	prefixPattern     = regexp.MustCompile(`^[\w]*$`)
	domainPattern     = regexp.MustCompile(`^[\w\d.-]*$`)
	ipPattern         = regexp.MustCompile(`^[\d:.]*$`)
	credentialPattern = regexp.MustCompile(`^[\w\d_.@-]*$`)
)

var tagMessages = map[string]string{
	"required":   "is required",
	"slug":       "can only contain letters, digits and dashes",
	"prefix":     "can only contain letters and digits",
	"domainname": "can only contain letters, digits, dashes and dots",
	"ipchars":    "can only contain digits, dots and colons",
	"credential": "can only contain letters, digits, underscore, dot, dash and @",
	"oneof":      "must be one of",
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func regexValidator(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Validator returns the shared validator with the instance naming rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		rules := map[string]*regexp.Regexp{
			"slug":       slugPattern,
			"prefix":     prefixPattern,
			"domainname": domainPattern,
			"ipchars":    ipPattern,
			"credential": credentialPattern,
		}
		for tag, re := range rules {
			if err := v.RegisterValidation(tag, regexValidator(re)); err != nil {
				panic(fmt.Sprintf("failed to register validation %s: %v", tag, err))
			}
		}
		validate = v
	})
	return validate
}

// Validate checks the struct tags of an entity and converts the first
// violation into an api.ValidationError.
func Validate(entity string, v interface{}) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return api.NewValidationError(entity, "", err.Error())
	}
	fe := verrs[0]
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		msg = "fails rule " + fe.Tag()
	}
	if fe.Param() != "" {
		msg += " " + fe.Param()
	}
	return api.NewValidationError(entity, strings.ToLower(fe.Field()), msg)
}

// ValidateServer checks a server record.
func ValidateServer(s *Server) error {
	if err := Validate("server", s); err != nil {
		return err
	}
	if s.EndPort < s.StartPort {
		return api.NewValidationError("server", "endport", "must not be lower than the start port")
	}
	return nil
}

// ValidateChildLink checks that a child's back-reference matches the slot
// declaring it. A child pointing at another slot or parent is rejected,
// which keeps parent/child chains acyclic.
func ValidateChildLink(parentID string, slot ChildSlot, childParentID, childSlotID string) error {
	if childParentID != parentID || childSlotID != slot.ID {
		return api.NewValidationError("child", slot.Application,
			fmt.Sprintf("child is not correctly linked to slot %s of %s", slot.ID, parentID))
	}
	return nil
}

func sortSlots(slots []ChildSlot) []ChildSlot {
	out := make([]ChildSlot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}
