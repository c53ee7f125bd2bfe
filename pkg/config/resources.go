package config

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"callaudit-server/pkg/analysis"
)

// Resources are the parsed YAML resource files driving the detectors.
type Resources struct {
	Phrases    analysis.PhraseSet
	Sensitive  analysis.SensitiveConfig
	Categories map[string][]string
}

type categoriesFile struct {
	Categories map[string][]string `yaml:"categories"`
}

// LoadResources parses the configured YAML resource files. A missing or
// unreadable file falls back to built-in defaults with a logged warning, so
// the service always starts.
func (c *Config) LoadResources(logger *logrus.Logger) *Resources {
	res := &Resources{
		Phrases:    defaultPhrases(),
		Sensitive:  defaultSensitive(),
		Categories: defaultCategories(),
	}

	var phrases analysis.PhraseSet
	if loadYAML(logger, c.resourcePath(c.Resources.PhrasesFile), &phrases) {
		res.Phrases = phrases
	}

	var sensitive analysis.SensitiveConfig
	if loadYAML(logger, c.resourcePath(c.Resources.SensitiveFile), &sensitive) {
		res.Sensitive = sensitive
	}

	var categories categoriesFile
	if loadYAML(logger, c.resourcePath(c.Resources.CategoriesFile), &categories) && len(categories.Categories) > 0 {
		res.Categories = categories.Categories
	}

	return res
}

func (c *Config) resourcePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Resources.Dir, name)
}

// loadYAML parses path into out, reporting success. Failures are logged and
// leave out untouched.
func loadYAML(logger *logrus.Logger, path string, out interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).WithField("path", path).Warn("Resource file not loaded, using built-in defaults")
		return false
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Resource file is not valid YAML, using built-in defaults")
		return false
	}

	logger.WithField("path", path).Info("Loaded resource file")
	return true
}

func defaultPhrases() analysis.PhraseSet {
	return analysis.PhraseSet{
		Greetings: []string{
			"hello",
			"thank you for calling",
			"how may i assist you",
			"how can i help you",
		},
		Closing: []string{
			"is there anything else",
			"have a great day",
			"thank you for your time",
		},
		Disclaimers: []string{
			"this call may be recorded",
			"for quality assurance",
		},
	}
}

func defaultSensitive() analysis.SensitiveConfig {
	return analysis.SensitiveConfig{
		PIIPatterns: map[string]string{
			"email":       `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			"phone":       `\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`,
			"ssn":         `\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`,
			"credit_card": `\b(?:4\d{3}|5\d{3}|6\d{3})[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`,
		},
	}
}

func defaultCategories() map[string][]string {
	return map[string][]string{
		"billing":   {"bill", "billing", "charge", "charged", "refund", "invoice", "payment"},
		"support":   {"help", "broken", "issue", "problem", "error", "fix"},
		"sales":     {"buy", "purchase", "upgrade", "plan", "pricing", "offer"},
		"complaint": {"complaint", "unhappy", "disappointed", "cancel", "terrible"},
	}
}
