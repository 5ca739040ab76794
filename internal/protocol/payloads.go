package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/le-tueur/chatvc/internal/models"

	"github.com/go-playground/validator/v10"
)

type authPayload struct {
	Handle string      `json:"handle" validate:"required,max=64"`
	Role   models.Role `json:"role" validate:"required,oneof=user guest admin bot"`
}

type sendMessagePayload struct {
	Content string `json:"content"`
}

type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type messageIDPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

type contentPayload struct {
	Content string `json:"content" validate:"required"`
}

type flashPayload struct {
	Content         string `json:"content" validate:"required"`
	DurationSeconds int    `json:"durationSeconds" validate:"gt=0,lte=3600"`
}

type configFields struct {
	Enabled           *bool `json:"enabled"`
	Cooldown          *int  `json:"cooldown" validate:"omitempty,gte=0,lte=3600"`
	TimerMinutes      *int  `json:"timerMinutes" validate:"omitempty,gte=0,lte=10080"`
	SimulationMode    *bool `json:"simulationMode"`
	DirectChatEnabled *bool `json:"directChatEnabled"`
}

type configPayload struct {
	Config configFields `json:"config"`
}

type mutePayload struct {
	Handle          string `json:"handle" validate:"required"`
	DurationMinutes int    `json:"durationMinutes" validate:"gt=0,lte=525600"`
}

type handlePayload struct {
	Handle string `json:"handle" validate:"required"`
}

type wordPayload struct {
	Word string `json:"word" validate:"required,max=100"`
}

type animationPayload struct {
	Kind string `json:"kind" validate:"required,max=32"`
}

type exportPayload struct {
	Format string `json:"format" validate:"required,oneof=json text"`
}

type botCommandPayload struct {
	Text string `json:"text" validate:"required,max=500"`
}

type botConfirmPayload struct {
	ProposalID string `json:"proposalId" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report wire names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals and validates the frame into v. On failure the client
// gets an error event and decode reports false.
func (h *Handler) decode(s session, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.fail("malformed payload")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		s.fail(validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid payload"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s", fe.Field())
	}
}
