package manager

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// DraftPayload is the phase 1 submission content.
type DraftPayload struct {
	Text      string `mapstructure:"text" validate:"required"`
	WordCount int    `mapstructure:"word_count" validate:"gte=0"`
}

// FeedbackPayload is the phase 2 submission content.
type FeedbackPayload struct {
	TargetUserID string `mapstructure:"target_user_id" validate:"required"`
	Comments     string `mapstructure:"comments" validate:"required"`
}

// RevisionPayload is the phase 3 submission content.
type RevisionPayload struct {
	Text    string `mapstructure:"text" validate:"required"`
	Summary string `mapstructure:"summary"`
}

// ValidateContent decodes the opaque submission content into the typed
// payload for the phase and validates it. The stored record keeps the
// raw map (wire contract); this guards shape before the write happens.
func ValidateContent(phase int, content map[string]any) error {
	var payload any
	switch phase {
	case 1:
		payload = &DraftPayload{}
	case 2:
		payload = &FeedbackPayload{}
	case 3:
		payload = &RevisionPayload{}
	default:
		return errors.Newf("unknown phase %d", phase)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  payload,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(content); err != nil {
		return errors.Wrapf(ErrInvalidPayload, "decode phase %d content: %v", phase, err)
	}

	if err := defaults.Set(payload); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	if err := validator.New().Struct(payload); err != nil {
		return errors.Wrapf(ErrInvalidPayload, "validate phase %d content: %v", phase, err)
	}
	return nil
}
