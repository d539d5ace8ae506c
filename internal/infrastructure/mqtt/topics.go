package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTopicLen is the MQTT limit on a UTF-8 encoded topic string.
const maxTopicLen = 65535

// ValidateTopic checks a topic name used for publishing.
// Publish topics must be non-empty valid UTF-8 without wildcards or NUL.
func ValidateTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription topic filter.
//
// Rules (MQTT 3.1.1 section 4.7.1):
//   - "+" must occupy a whole level
//   - "#" must occupy a whole level and be the last one
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateCommon(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTopic, maxTopicLen)
	}
	if !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: invalid UTF-8 or NUL", ErrInvalidTopic)
	}
	return nil
}
