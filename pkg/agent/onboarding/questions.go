package onboarding

import (
	_ "embed"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultQuestions []byte

type Question struct {
	Key  string `yaml:"key"`
	Text string `yaml:"text"`
}

// Script is the interview content
type Script struct {
	Intro     string     `yaml:"intro"`
	Outro     string     `yaml:"outro"`
	Questions []Question `yaml:"questions"`
}

// LoadScript parses an interview script from YAML
func LoadScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, goerr.Wrap(err, "failed to parse onboarding script")
	}
	if len(s.Questions) == 0 {
		return nil, goerr.New("onboarding script has no questions")
	}
	for i, q := range s.Questions {
		if q.Key == "" || q.Text == "" {
			return nil, goerr.New("onboarding question needs key and text", goerr.V("index", i))
		}
	}
	return &s, nil
}

// DefaultScript returns the embedded interview script
func DefaultScript() *Script {
	s, err := LoadScript(defaultQuestions)
	if err != nil {
		panic(err)
	}
	return s
}
