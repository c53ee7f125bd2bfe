package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/errors"
)

// maskReplacement is what detected PII matches are replaced with.
const maskReplacement = "****"

// baseBadwords is the built-in profanity lexicon; deployments extend it with
// custom words from configuration.
var baseBadwords = []string{
	"ass", "asshole", "bastard", "bitch", "bullshit", "crap",
	"damn", "dammit", "dick", "fuck", "fucking", "goddamn",
	"hell", "jackass", "piss", "prick", "shit", "shitty",
}

// SensitiveConfig holds the YAML-sourced detector configuration.
type SensitiveConfig struct {
	PIIPatterns    map[string]string `yaml:"pii_patterns" json:"pii_patterns"`
	CustomBadwords []string          `yaml:"custom_badwords" json:"custom_badwords"`
}

// SensitiveInfoDetector finds and masks PII and profanity in transcribed
// text. PII detection is regex-per-type; profanity is lexicon membership on
// normalized words.
type SensitiveInfoDetector struct {
	logger   *logrus.Entry
	patterns map[string]*regexp.Regexp
	badwords map[string]bool
}

// NewSensitiveInfoDetector compiles the configured PII patterns and merges
// custom badwords into the base lexicon.
func NewSensitiveInfoDetector(logger *logrus.Logger, config SensitiveConfig) (*SensitiveInfoDetector, error) {
	patterns := make(map[string]*regexp.Regexp, len(config.PIIPatterns))
	for piiType, pattern := range config.PIIPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.NewInvalidInput("invalid PII pattern").WithFields(map[string]interface{}{
				"pii_type": piiType,
				"pattern":  pattern,
			})
		}
		patterns[piiType] = compiled
	}

	badwords := make(map[string]bool, len(baseBadwords)+len(config.CustomBadwords))
	for _, w := range baseBadwords {
		badwords[w] = true
	}
	for _, w := range config.CustomBadwords {
		badwords[strings.ToLower(strings.TrimSpace(w))] = true
	}

	return &SensitiveInfoDetector{
		logger:   logger.WithField("component", "sensitive_detector"),
		patterns: patterns,
		badwords: badwords,
	}, nil
}

// normalizeWord lowercases a token and strips surrounding punctuation so
// "Damn!" still matches the lexicon.
func normalizeWord(word string) string {
	return strings.Trim(strings.ToLower(word), ".,!?;:'\"()[]{}")
}

// DetectProfanity returns every profane word found in text, in order of
// appearance and as written.
func (d *SensitiveInfoDetector) DetectProfanity(text string) []string {
	detected := make([]string, 0)
	for _, word := range strings.Fields(text) {
		if d.badwords[normalizeWord(word)] {
			detected = append(detected, word)
		}
	}

	if len(detected) > 0 {
		d.logger.WithField("count", len(detected)).Warn("Profanity detected")
	}

	return detected
}

// FindPII scans text with every configured pattern and returns matches
// grouped by PII type. Types with no matches are omitted.
func (d *SensitiveInfoDetector) FindPII(text string) map[string][]string {
	detected := make(map[string][]string)

	types := make([]string, 0, len(d.patterns))
	for piiType := range d.patterns {
		types = append(types, piiType)
	}
	sort.Strings(types)

	for _, piiType := range types {
		matches := d.patterns[piiType].FindAllString(text, -1)
		if len(matches) > 0 {
			detected[piiType] = matches
			d.logger.WithFields(logrus.Fields{
				"pii_type": piiType,
				"count":    len(matches),
			}).Warn("PII detected")
		}
	}

	return detected
}

// CensorProfanity replaces every profane word in text with the mask
// replacement while preserving surrounding punctuation and spacing.
func (d *SensitiveInfoDetector) CensorProfanity(text string) string {
	words := strings.Fields(text)
	changed := false
	for i, word := range words {
		normalized := normalizeWord(word)
		if !d.badwords[normalized] {
			continue
		}
		words[i] = strings.Replace(word, strings.Trim(word, ".,!?;:'\"()[]{}"), maskReplacement, 1)
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

// Mask replaces every match in the given PII map with the mask replacement.
// Callers typically pass the output of FindPII over the same text.
func (d *SensitiveInfoDetector) Mask(text string, piiMatches map[string][]string) string {
	masked := text

	types := make([]string, 0, len(piiMatches))
	for piiType := range piiMatches {
		types = append(types, piiType)
	}
	sort.Strings(types)

	replacements := 0
	for _, piiType := range types {
		for _, match := range piiMatches[piiType] {
			masked = strings.ReplaceAll(masked, match, maskReplacement)
			replacements++
		}
	}

	if replacements > 0 {
		d.logger.WithField("replacements", replacements).Debug("Masked sensitive content")
	}

	return masked
}

// MaskAll censors profanity and masks all detected PII in one pass. This is
// the masked-transcript stage behavior.
func (d *SensitiveInfoDetector) MaskAll(text string) string {
	masked := d.CensorProfanity(text)
	return d.Mask(masked, d.FindPII(masked))
}
