package workflow

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CheckOutcome is the verdict of one validation check.
type CheckOutcome string

const (
	CheckPass CheckOutcome = "pass"
	CheckFail CheckOutcome = "fail"
	CheckSkip CheckOutcome = "skip"
)

// CheckFunc inspects content. Checks never error; a check that cannot be
// evaluated returns CheckSkip.
type CheckFunc func(content string, params map[string]string) CheckOutcome

// DefaultBannedPhrases is used by the compliance check when no "banned" param is set.
var DefaultBannedPhrases = []string{
	"guaranteed cure",
	"you should stop taking your medication",
	"this is a medical diagnosis",
}

var checks = map[string]CheckFunc{
	"accuracy":   checkAccuracy,
	"tone":       checkTone,
	"compliance": checkCompliance,
	"length":     checkLength,
	"json":       checkJSON,
}

// CheckNames lists the built-in checks.
func CheckNames() []string {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunCheck evaluates the named check; unknown names are skipped.
func RunCheck(name, content string, params map[string]string) CheckOutcome {
	fn, ok := checks[name]
	if !ok {
		return CheckSkip
	}
	return fn(content, params)
}

func checkAccuracy(content string, _ map[string]string) CheckOutcome {
	if strings.TrimSpace(content) == "" {
		return CheckFail
	}
	return CheckPass
}

// checkTone fails on shouting: repeated exclamation marks, or mostly upper-case
// letters in a text with enough letters to judge.
func checkTone(content string, _ map[string]string) CheckOutcome {
	if strings.Contains(content, "!!!") {
		return CheckFail
	}
	var letters, upper int
	for _, r := range content {
		if !unicode.IsLetter(r) || !(unicode.IsUpper(r) || unicode.IsLower(r)) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters >= 12 && float64(upper)/float64(letters) > 0.7 {
		return CheckFail
	}
	return CheckPass
}

func checkCompliance(content string, params map[string]string) CheckOutcome {
	banned := DefaultBannedPhrases
	if raw, ok := params["banned"]; ok {
		banned = nil
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				banned = append(banned, p)
			}
		}
	}
	lower := strings.ToLower(content)
	for _, p := range banned {
		if strings.Contains(lower, strings.ToLower(p)) {
			return CheckFail
		}
	}
	return CheckPass
}

func checkLength(content string, params map[string]string) CheckOutcome {
	raw, ok := params["max_length"]
	if !ok {
		return CheckSkip
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return CheckSkip
	}
	if utf8.RuneCountInString(content) > limit {
		return CheckFail
	}
	return CheckPass
}

func checkJSON(content string, _ map[string]string) CheckOutcome {
	if json.Valid([]byte(strings.TrimSpace(content))) {
		return CheckPass
	}
	return CheckFail
}
