package services

import (
	"strings"
	"unicode/utf8"

	"masterok/internal/models"
)

const (
	maxPhotos      = 5
	maxBudget      = 100000
	maxPrice       = 100000
	maxEstimate    = 480
	maxMessageText = 1000
	maxImageRef    = 255
)

func lengthBetween(v models.ValidationErrors, field, value string, min, max int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0 && min > 0:
		v.Add(field, "is required")
	case n < min:
		v.Add(field, "is too short")
	case n > max:
		v.Add(field, "is too long")
	}
}

func validRequestType(t string) bool {
	for _, known := range models.RequestTypes {
		if t == known {
			return true
		}
	}
	return false
}

func validateRequest(r models.Request) error {
	v := models.ValidationErrors{}
	lengthBetween(v, "title", r.Title, 5, 200)
	lengthBetween(v, "description", r.Description, 10, 1000)
	if !validRequestType(r.Type) {
		v.Add("type", "is not a known appliance type")
	}
	if r.Brand != nil {
		lengthBetween(v, "brand", *r.Brand, 0, 100)
	}
	if r.Model != nil {
		lengthBetween(v, "model", *r.Model, 0, 100)
	}
	if len(r.Photos) > maxPhotos {
		v.Add("photos", "at most 5 photos are allowed")
	}
	for _, p := range r.Photos {
		if strings.TrimSpace(p) == "" || len(p) > maxImageRef {
			v.Add("photos", "contains an invalid image reference")
			break
		}
	}
	lengthBetween(v, "address", r.Address, 1, 255)
	lengthBetween(v, "district", r.District, 1, 100)
	if r.Budget != nil && (*r.Budget < 0 || *r.Budget > maxBudget) {
		v.Add("budget", "must be between 0 and 100000")
	}
	return v.Err()
}

func validateResponse(in models.ResponseInput) error {
	v := models.ValidationErrors{}
	if in.Price < 0 || in.Price > maxPrice {
		v.Add("price", "must be between 0 and 100000")
	}
	lengthBetween(v, "message", in.Message, 5, 500)
	if in.EstimatedTime != nil && (*in.EstimatedTime < 1 || *in.EstimatedTime > maxEstimate) {
		v.Add("estimated_time", "must be between 1 and 480 minutes")
	}
	return v.Err()
}

// normalizeMessage trims the input and rejects messages with no content.
func normalizeMessage(in models.MessageInput) (models.MessageInput, error) {
	v := models.ValidationErrors{}
	if in.Text != nil {
		t := strings.TrimSpace(*in.Text)
		if t == "" {
			in.Text = nil
		} else {
			in.Text = &t
		}
	}
	if in.ImageRef != nil {
		ref := strings.TrimSpace(*in.ImageRef)
		if ref == "" {
			in.ImageRef = nil
		} else {
			in.ImageRef = &ref
		}
	}
	if in.Text == nil && in.ImageRef == nil {
		v.Add("text", "text or image is required")
	}
	if in.Text != nil && utf8.RuneCountInString(*in.Text) > maxMessageText {
		v.Add("text", "is too long")
	}
	if in.ImageRef != nil && len(*in.ImageRef) > maxImageRef {
		v.Add("image_ref", "is too long")
	}
	return in, v.Err()
}
