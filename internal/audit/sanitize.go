package audit

import "strings"

// RedactionMarker replaces any value whose field name matches a sensitive
// pattern.
const RedactionMarker = "[REDACTED]"

// defaultSensitivePatterns are matched case-insensitively as substrings of
// field names. The list errs on the side of redaction; a false positive
// loses one metadata value, a false negative leaks a secret.
var defaultSensitivePatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"key",
	"card",
	"pan",
	"cvv",
	"ssn",
	"authorization",
	"credential",
	"pin",
}

// Sanitizer redacts sensitive fields from raw events before they reach the
// chain. Sanitize is pure and never fails: values it cannot inspect pass
// through untouched, but any map key matching a pattern is replaced with the
// redaction marker, recursively.
type Sanitizer struct {
	patterns []string
}

// NewSanitizer builds a Sanitizer with the given extra patterns on top of the
// defaults. Patterns are lowercased once up front.
func NewSanitizer(extra ...string) *Sanitizer {
	patterns := make([]string, 0, len(defaultSensitivePatterns)+len(extra))
	patterns = append(patterns, defaultSensitivePatterns...)
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Sanitizer{patterns: patterns}
}

// Sanitize returns a deep copy of the event with sensitive fields redacted
// throughout metadata and the optional change snapshot.
func (s *Sanitizer) Sanitize(e *AuditEvent) *AuditEvent {
	if e == nil {
		return nil
	}
	out := *e
	out.Metadata = s.redactMap(e.Metadata)
	if e.Change != nil {
		out.Change = &ChangeSet{
			Before: s.redactMap(e.Change.Before),
			After:  s.redactMap(e.Change.After),
		}
	}
	if len(e.Tags) > 0 {
		out.Tags = append([]ComplianceTag(nil), e.Tags...)
	}
	return &out
}

func (s *Sanitizer) sensitive(key string) bool {
	lk := strings.ToLower(key)
	for _, p := range s.patterns {
		if strings.Contains(lk, p) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) redactMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if s.sensitive(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = s.redactValue(v)
	}
	return out
}

func (s *Sanitizer) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return s.redactMap(val)
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, sv := range val {
			if s.sensitive(k) {
				out[k] = RedactionMarker
			} else {
				out[k] = sv
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = s.redactValue(elem)
		}
		return out
	default:
		// Scalars and shapes we cannot inspect pass through unredacted.
		return v
	}
}
