package domain

import (
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	// MinAge is the youngest age a persona can be configured with.
	MinAge = 18
	// MaxAge is the oldest age a persona can be configured with.
	MaxAge = 100
)

var avatarExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// PersonaUpdate is a partial configuration change. Nil or blank fields keep
// the current value.
type PersonaUpdate struct {
	Name        *string `json:"name,omitempty"`
	Personality *string `json:"personality,omitempty"`
	Interests   *string `json:"interests,omitempty"`
	Age         *string `json:"age,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

// Validate checks every provided field. It does not touch any persona.
func (u PersonaUpdate) Validate() error {
	if v, ok := provided(u.Age); ok {
		if _, err := parseAge(v); err != nil {
			return err
		}
	}
	if v, ok := provided(u.Avatar); ok {
		if err := validateAvatar(v); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTo returns p with the update merged in and the history emptied.
// Callers must Validate first; invalid fields are ignored here.
func (u PersonaUpdate) ApplyTo(p Persona) Persona {
	out := p.Clone()
	if v, ok := provided(u.Name); ok {
		out.Name = v
	}
	if v, ok := provided(u.Personality); ok {
		out.Personality = v
	}
	if v, ok := provided(u.Interests); ok {
		out.Interests = SplitInterests(v)
	}
	if v, ok := provided(u.Age); ok {
		if age, err := parseAge(v); err == nil {
			out.Age = age
		}
	}
	if v, ok := provided(u.Avatar); ok {
		out.Avatar = v
	}
	out.ConversationHistory = []Turn{}
	return out
}

// SplitInterests turns comma-separated text into a trimmed list. Empty
// entries are dropped; duplicates are kept in order.
func SplitInterests(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func provided(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	s := strings.TrimSpace(*v)
	return s, s != ""
}

func parseAge(s string) (int, error) {
	age, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Field: "age", Message: "tuổi phải là một số nguyên"}
	}
	if age < MinAge || age > MaxAge {
		return 0, &ValidationError{
			Field:   "age",
			Message: "tuổi phải nằm trong khoảng " + strconv.Itoa(MinAge) + " đến " + strconv.Itoa(MaxAge),
		}
	}
	return age, nil
}

func validateAvatar(s string) error {
	invalid := &ValidationError{Field: "avatar", Message: "avatar phải là URL hình ảnh hợp lệ (jpg, jpeg, png, gif)"}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, allowed := range avatarExtensions {
		if ext == allowed {
			return nil
		}
	}
	return invalid
}
