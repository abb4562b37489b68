// Package interpret turns free-form audit payloads into human-readable
// sentences and normalized diff entries. It is pure: no I/O, deterministic
// output for the same input, safe to cache and to unit test in isolation.
package interpret

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Entry is one displayable field. Old/New are set for before-after pairs,
// Value for plain fields.
type Entry struct {
	Field string  `json:"field"`
	Old   *string `json:"old,omitempty"`
	New   *string `json:"new,omitempty"`
	Value string  `json:"value,omitempty"`
}

// Rendered is the interpreter output for one event.
type Rendered struct {
	Sentence string  `json:"sentence,omitempty"`
	Diff     []Entry `json:"diff,omitempty"`
	Fields   []Entry `json:"fields,omitempty"`
}

// diffKeys are always rendered as a diff block, additive to any sentence.
var diffKeys = []string{"changes", "details"}

type matcher struct {
	keys     []string
	match    func(action string, payload map[string]any) bool
	sentence func(ev eventInfo, payload map[string]any) string
}

// eventInfo carries the event coordinates into sentence builders.
type eventInfo struct {
	Action      string
	TargetModel string
}

// Matchers are tried in order; the first whose required keys are all present
// (and whose extra check passes) wins. Order is part of the contract.
var matchers = []matcher{
	{
		keys:     []string{"subject_code", "section"},
		sentence: enrollmentSentence,
	},
	{
		keys:     []string{"program", "created_via"},
		sentence: registrationSentence,
	},
	{
		keys:     []string{"amount", "payment_mode", "receipt_number"},
		sentence: paymentSentence,
	},
	{
		keys:     []string{"action", "student", "proposed_grade"},
		sentence: gradeSentence,
	},
	{
		keys:     []string{"role", "email"},
		sentence: userCreationSentence,
	},
	{
		match: func(action string, _ map[string]any) bool {
			switch action {
			case "LOGIN", "LOGOUT", "DELETED":
				return true
			}
			return false
		},
		sentence: tokenSentence,
	},
}

// Render interprets one event payload. Unrecognized shapes degrade to the
// humanized key/value fallback; Render never fails.
func Render(action, targetModel string, payload map[string]any) Rendered {
	var out Rendered

	matched := false
	for _, m := range matchers {
		if !hasKeys(payload, m.keys) {
			continue
		}
		if m.match != nil && !m.match(action, payload) {
			continue
		}
		out.Sentence = m.sentence(eventInfo{Action: action, TargetModel: targetModel}, payload)
		matched = true
		break
	}

	out.Diff = renderDiff(payload)

	if !matched {
		out.Fields = fallbackFields(payload)
	}
	return out
}

// Humanize turns a snake_case key into a display label.
func Humanize(key string) string {
	words := strings.ReplaceAll(key, "_", " ")
	return cases.Title(language.English).String(words)
}

func hasKeys(payload map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := payload[k]; !ok {
			return false
		}
	}
	return true
}

func renderDiff(payload map[string]any) []Entry {
	var entries []Entry
	for _, key := range diffKeys {
		block, ok := payload[key].(map[string]any)
		if !ok {
			continue
		}
		fields := make([]string, 0, len(block))
		for f := range block {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			entries = append(entries, diffEntry(f, block[f]))
		}
	}
	return entries
}

func diffEntry(field string, value any) Entry {
	if pair, ok := value.(map[string]any); ok {
		oldVal, hasOld := pair["old"]
		newVal, hasNew := pair["new"]
		if hasOld && hasNew {
			oldStr := formatValue(oldVal)
			newStr := formatValue(newVal)
			return Entry{Field: Humanize(field), Old: &oldStr, New: &newStr}
		}
	}
	return Entry{Field: Humanize(field), Value: formatValue(value)}
}

func fallbackFields(payload map[string]any) []Entry {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "changes" || k == "details" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Field: Humanize(k), Value: formatValue(payload[k])})
	}
	return entries
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func str(payload map[string]any, key string) string {
	return formatValue(payload[key])
}

func enrollmentSentence(_ eventInfo, p map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Enrolled in %s Section %s", str(p, "subject_code"), str(p, "section"))
	units, hasUnits := p["units"]
	etype, hasType := p["enrollment_type"]
	switch {
	case hasUnits && hasType:
		fmt.Fprintf(&b, " (%s units, %s)", formatValue(units), formatValue(etype))
	case hasUnits:
		fmt.Fprintf(&b, " (%s units)", formatValue(units))
	case hasType:
		fmt.Fprintf(&b, " (%s)", formatValue(etype))
	}
	return b.String()
}

func registrationSentence(_ eventInfo, p map[string]any) string {
	s := fmt.Sprintf("Registered for the term under %s via %s", str(p, "program"), str(p, "created_via"))
	if transferee, ok := p["is_transferee"].(bool); ok && transferee {
		s += " (transferee)"
	}
	return s
}

func paymentSentence(_ eventInfo, p map[string]any) string {
	return fmt.Sprintf("Payment of %s received via %s (Receipt #%s)",
		str(p, "amount"), str(p, "payment_mode"), str(p, "receipt_number"))
}

func gradeSentence(_ eventInfo, p map[string]any) string {
	return fmt.Sprintf("%s proposed grade %s for %s",
		str(p, "action"), str(p, "proposed_grade"), str(p, "student"))
}

func userCreationSentence(_ eventInfo, p map[string]any) string {
	return fmt.Sprintf("Registered new %s account for %s", str(p, "role"), str(p, "email"))
}

func tokenSentence(ev eventInfo, _ map[string]any) string {
	switch ev.Action {
	case "LOGIN":
		return "Logged in"
	case "LOGOUT":
		return "Logged out"
	default:
		if ev.TargetModel != "" {
			return fmt.Sprintf("%s record deleted", ev.TargetModel)
		}
		return "Record deleted"
	}
}
