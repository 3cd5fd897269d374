package enrichment

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/ortelius/versionwatch/model"
)

const (
	maxNotes   = 12
	maxSources = 20
	maxActions = 12

	maxTextRunes   = 4000
	maxActionRunes = 1000

	defaultConfidence = 50

	// HumanValidationNote is appended to every result's notes.
	HumanValidationNote = "AI-generated analysis. Verify with a human reviewer before acting on it."
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

var validate = validator.New()

// extractJSON reduces raw model text to a JSON object. It tries the whole trimmed text,
// then a ```json fenced block, then the span from the first '{' to the last '}'.
func extractJSON(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if isObject(trimmed) {
		return json.RawMessage(trimmed), true
	}

	if m := fencedJSON.FindStringSubmatch(trimmed); len(m) == 2 {
		if candidate := strings.TrimSpace(m[1]); isObject(candidate) {
			return json.RawMessage(candidate), true
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if candidate := trimmed[start : end+1]; isObject(candidate) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}

type payload struct {
	AIGeneratedData json.RawMessage `json:"ai_generated_data"`
	ConfidenceLevel json.RawMessage `json:"confidence_level"`
	Sources         json.RawMessage `json:"sources"`
	Notes           json.RawMessage `json:"notes"`
}

// generated mirrors AIGeneratedData with nullable fields so missing and null both default.
type generated struct {
	RiskSummary              *string  `json:"risk_summary"`
	ExploitabilityAssessment *string  `json:"exploitability_assessment"`
	BusinessImpact           *string  `json:"business_impact"`
	RemediationPriority      *string  `json:"remediation_priority"`
	RecommendedActions       []string `json:"recommended_actions"`
}

func parsePayload(obj json.RawMessage) (*payload, error) {
	var p payload
	if err := json.Unmarshal(obj, &p); err != nil {
		return nil, &ValidationError{Reason: "top-level object", Err: err}
	}
	return &p, nil
}

// parseGenerated decodes and validates ai_generated_data. Wrong JSON types fail.
func parseGenerated(raw json.RawMessage) (model.AIGeneratedData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.AIGeneratedData{}, &ValidationError{Reason: "ai_generated_data missing"}
	}

	var g generated
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&g); err != nil {
		return model.AIGeneratedData{}, &ValidationError{Reason: "ai_generated_data shape", Err: err}
	}

	out := model.AIGeneratedData{
		RiskSummary:              truncate(text(g.RiskSummary), maxTextRunes),
		ExploitabilityAssessment: truncate(text(g.ExploitabilityAssessment), maxTextRunes),
		BusinessImpact:           truncate(text(g.BusinessImpact), maxTextRunes),
		RemediationPriority:      strings.ToLower(text(g.RemediationPriority)),
		RecommendedActions:       []string{},
	}
	if out.RemediationPriority == "" {
		out.RemediationPriority = model.PriorityMedium
	}
	for _, action := range g.RecommendedActions {
		if action = strings.TrimSpace(action); action != "" {
			out.RecommendedActions = append(out.RecommendedActions, truncate(action, maxActionRunes))
		}
		if len(out.RecommendedActions) == maxActions {
			break
		}
	}

	if err := validate.Struct(out); err != nil {
		return model.AIGeneratedData{}, &ValidationError{Reason: "ai_generated_data values", Err: err}
	}
	return out, nil
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

// normalizeConfidence accepts a number or a numeric string. Anything else, including
// non-finite values, becomes 50. The result is clamped to [0,100] and rounded.
func normalizeConfidence(raw json.RawMessage) int {
	value := float64(defaultConfidence)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return defaultConfidence
	}

	var number float64
	var str string
	switch {
	case json.Unmarshal(raw, &number) == nil:
		value = number
	case json.Unmarshal(raw, &str) == nil:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			value = parsed
		}
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = defaultConfidence
	}
	return int(math.Round(math.Max(0, math.Min(100, value))))
}

// stringList reads a JSON array of strings, skipping anything that is not a string.
func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// normalizeList trims, drops blanks and duplicates, keeps at most limit-1 entries and
// then appends required unless it is already present.
func normalizeList(values []string, limit int, required string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, limit)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] || v == required {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) > limit-1 {
		out = out[:limit-1]
	}
	return append(out, required)
}
