package ideawatch

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxDescriptionLen = 5000
	maxEmailLen       = 320
)

// monitorWindows maps the monitoring selector to its duration.
var monitorWindows = map[string]time.Duration{
	"":   0,
	"1m": 30 * 24 * time.Hour,
	"3m": 90 * 24 * time.Hour,
	"6m": 180 * 24 * time.Hour,
}

// SubmitRequest is one idea submission.
type SubmitRequest struct {
	Email       string `json:"email"`
	Description string `json:"description"`
	// Image is base64, optionally as a data: URL.
	Image     string `json:"image,omitempty"`
	ImageMIME string `json:"image_mime,omitempty"`
	// Monitor is "", "1m", "3m" or "6m".
	Monitor string `json:"monitor,omitempty"`
}

func normalizeEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if len(s) > maxEmailLen {
		return "", fmt.Errorf("%w: email too long", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, s)
	}
	return strings.ToLower(addr.Address), nil
}

func validateSubmit(req *SubmitRequest) error {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	req.Email = email
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, maxDescriptionLen)
	}
	req.Monitor = strings.ToLower(strings.TrimSpace(req.Monitor))
	if _, ok := monitorWindows[req.Monitor]; !ok {
		return fmt.Errorf("%w: monitor must be one of \"\", 1m, 3m, 6m", ErrInvalidInput)
	}
	return nil
}

// decodeImage decodes a base64 image. Unreadable, oversized and non-image
// payloads return an error; the caller falls back to a text-only idea.
func decodeImage(data, mime string, maxBytes int) ([]byte, string, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data url")
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = payload
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if len(raw) > maxBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	detected := http.DetectContentType(raw)
	if !strings.HasPrefix(detected, "image/") {
		return nil, "", fmt.Errorf("payload is %s, not an image", detected)
	}
	if mime == "" {
		mime = detected
	}
	return raw, mime, nil
}
