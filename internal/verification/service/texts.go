package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Texts are the user-facing strings. Greeting may contain {username}.
type Texts struct {
	Greeting      string `yaml:"greeting"`
	Button        string `yaml:"button"`
	Passed        string `yaml:"passed"`
	NotYourButton string `yaml:"not_your_button"`
	Retry         string `yaml:"retry"`
	// FallbackName is used when the member has neither a username nor a first name.
	FallbackName string `yaml:"fallback_name"`
}

func DefaultTexts() Texts {
	return Texts{
		Greeting:      "Welcome @{username}! 👋\nTo keep chatting, please confirm you are human: press \"I'm not a robot\".",
		Button:        "I'm not a robot",
		Passed:        "Verification passed!",
		NotYourButton: "This button is not for you.",
		Retry:         "Something went wrong, please press the button again.",
		FallbackName:  "friend",
	}
}

// LoadTexts reads overrides from a YAML file. Keys that are absent or empty
// keep their defaults.
func LoadTexts(path string) (Texts, error) {
	texts := DefaultTexts()
	if path == "" {
		return texts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return texts, fmt.Errorf("read texts file: %w", err)
	}
	var overrides Texts
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return texts, fmt.Errorf("parse texts file %s: %w", path, err)
	}
	texts.merge(overrides)
	return texts, nil
}

func (t *Texts) merge(o Texts) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&t.Greeting, o.Greeting)
	set(&t.Button, o.Button)
	set(&t.Passed, o.Passed)
	set(&t.NotYourButton, o.NotYourButton)
	set(&t.Retry, o.Retry)
	set(&t.FallbackName, o.FallbackName)
}

func (t Texts) greeting(name string) string {
	return strings.ReplaceAll(t.Greeting, "{username}", name)
}
