package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultConfidence is used when a verdict carries no numeric confidence.
const DefaultConfidence = 85

// maxFallbackCaption caps captions rendered from non-string values.
const maxFallbackCaption = 200

var (
	fenceOpenRe  = regexp.MustCompile("(?i)```(?:json)?\\s*")
	confidenceRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3})\s*%\s*confiden`),
		regexp.MustCompile(`(?i)confidence(?:\s+(?:level|score|of|is))*\s*[:=]?\s*(\d{1,3})\s*%`),
		regexp.MustCompile(`(?i)"confid\w*"\s*:\s*"?(\d{1,3})`),
	}
	distractedFieldRe = regexp.MustCompile(`(?i)"distract\w*"\s*:\s*"?(true|false|yes|no)\b`)
	jsonKeyRe         = regexp.MustCompile(`"[^"\n]*"\s*:`)
	conclusionRe    = regexp.MustCompile(`(?i)-?\s*final\s+conclusion\s*:\s*[*_"']*\s*(working|distracted)`)
	verdictTokenRe  = regexp.MustCompile(`\b(WORKING|DISTRACTED)\b`)
	verdictWordRe   = regexp.MustCompile(`(?i)\b(working|distracted)\b`)
	captionScrapeRe = regexp.MustCompile(`"desc_image(\d+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	verdictRegexes  = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\{.*?"Reasoning".*?\}`),
		regexp.MustCompile(`(?is)\{[^{}]*"Distracted"[^{}]*\}`),
		regexp.MustCompile(`(?is)\{.*"Distracted".*\}`),
	}
)

// errNoVerdict is returned when a response contains no usable verdict object.
var errNoVerdict = errors.New("no verdict object found")

// StripCodeFences removes Markdown code fences around model output.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = fenceOpenRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractJSONObject returns the first balanced {...} object in text.
// Braces inside quoted strings, including escaped quotes, are ignored.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end, ok := matchBrace(text, start)
	if !ok {
		return "", false
	}
	return text[start : end+1], true
}

// extractJSONObjectContaining returns the first balanced object whose text
// contains marker.
func extractJSONObjectContaining(text, marker string) (string, bool) {
	offset := 0
	for {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			return "", false
		}
		start := offset + idx
		if end, ok := matchBrace(text, start); ok {
			obj := text[start : end+1]
			if strings.Contains(obj, marker) {
				return obj, true
			}
			offset = end + 1
			continue
		}
		offset = start + 1
	}
}

// matchBrace returns the index of the brace closing text[start].
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// VerdictParse is the decoded stage-2 JSON verdict.
type VerdictParse struct {
	Distracted bool
	Confidence *int
	Reasoning  *string
}

// ParseVerdict decodes a stage-2 response. It strips fences, tries a
// direct decode, then the first balanced object, then regex extraction.
func ParseVerdict(text string) (*VerdictParse, error) {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return nil, errors.New("empty response")
	}

	var candidates []string
	candidates = append(candidates, cleaned)
	if obj, ok := ExtractJSONObject(cleaned); ok {
		candidates = append(candidates, obj)
	}
	for _, re := range verdictRegexes {
		if m := re.FindString(cleaned); m != "" {
			candidates = append(candidates, m)
		}
	}

	var lastErr error = errNoVerdict
	for _, candidate := range candidates {
		var fields map[string]any
		if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
			lastErr = err
			continue
		}
		verdict, err := verdictFromFields(fields)
		if err != nil {
			lastErr = err
			continue
		}
		return verdict, nil
	}
	return nil, fmt.Errorf("failed to parse verdict: %w", lastErr)
}

// verdictFromFields matches keys case-insensitively by substring.
func verdictFromFields(fields map[string]any) (*VerdictParse, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	verdict := &VerdictParse{}
	found := false

	for _, key := range keys {
		lower := strings.ToLower(key)
		value := fields[key]

		switch {
		case strings.Contains(lower, "reason"):
			if verdict.Reasoning == nil {
				s := stringify(value)
				verdict.Reasoning = &s
			}
		case strings.Contains(lower, "distract"):
			d, ok := coerceBool(value)
			if !ok {
				return nil, fmt.Errorf("unrecognized distracted value %v", value)
			}
			verdict.Distracted = d
			found = true
		case strings.Contains(lower, "confid"):
			if c, ok := coerceConfidence(value); ok {
				verdict.Confidence = &c
			}
		}
	}

	if !found {
		return nil, errNoVerdict
	}
	return verdict, nil
}

func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "distracted", "1":
			return true, true
		case "false", "no", "working", "normal", "not distracted", "0":
			return false, true
		}
	}
	return false, false
}

func coerceConfidence(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return clampPercent(int(math.Round(val))), true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return clampPercent(int(math.Round(f))), true
	}
	return 0, false
}

func clampPercent(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// ParseConclusion reads a line-protocol verdict. It looks for the
// "-Final Conclusion:" marker first, then a standalone WORKING/DISTRACTED
// token in the last ten lines, then whichever word occurs later in the text.
func ParseConclusion(text string) (distracted bool, ok bool) {
	if matches := conclusionRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1][1]
		return strings.EqualFold(last, "distracted"), true
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	from := len(lines) - 10
	if from < 0 {
		from = 0
	}
	for i := len(lines) - 1; i >= from; i-- {
		tokens := verdictTokenRe.FindAllString(lines[i], -1)
		if len(tokens) > 0 {
			return tokens[len(tokens)-1] == "DISTRACTED", true
		}
	}

	// a JSON key such as "Distracted": is not a verdict
	words := verdictWordRe.FindAllString(jsonKeyRe.ReplaceAllString(text, ":"), -1)
	if len(words) == 0 {
		return false, false
	}
	return strings.EqualFold(words[len(words)-1], "distracted"), true
}

// ScrapeDistracted reads the Distracted field out of JSON too broken to
// decode, such as a trailing comma or a reply cut off mid-object.
func ScrapeDistracted(text string) (distracted bool, ok bool) {
	matches := distractedFieldRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return false, false
	}
	v := strings.ToLower(matches[len(matches)-1][1])
	return v == "true" || v == "yes", true
}

// ExtractConfidence scrapes an "N% confidence" style figure, or a JSON
// confidence field, from text.
func ExtractConfidence(text string) (int, bool) {
	for _, re := range confidenceRe {
		if m := re.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return clampPercent(n), true
		}
	}
	return 0, false
}

// cleanCaptionResponse strips fences and the Markdown escapes some models
// emit inside JSON keys.
func cleanCaptionResponse(text string) string {
	text = StripCodeFences(text)
	text = strings.ReplaceAll(text, `\_`, "_")
	text = strings.ReplaceAll(text, `\*`, "*")
	return text
}

// captionKeys lists the accepted spellings for the i-th caption key.
func captionKeys(i int) []string {
	return []string{
		fmt.Sprintf("desc_image%d", i),
		fmt.Sprintf("image_%d", i),
		fmt.Sprintf("image%d", i),
		fmt.Sprintf("Image %d", i),
		fmt.Sprintf("Image_%d", i),
	}
}

// ParseCaptions extracts up to count stage-1 captions. When the JSON cannot
// be decoded it scrapes desc_imageN pairs with a regex and returns the
// decode error alongside whatever it recovered.
func ParseCaptions(text string, count int) ([]string, error) {
	cleaned := cleanCaptionResponse(text)

	body, ok := extractJSONObjectContaining(cleaned, "desc_image")
	if !ok {
		if obj, found := ExtractJSONObject(cleaned); found {
			body = obj
		} else {
			body = cleaned
		}
	}

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return scrapeCaptions(cleaned), fmt.Errorf("failed to decode captions: %w", err)
	}

	var captions []string
	switch val := decoded.(type) {
	case map[string]any:
		for i := 1; i <= count; i++ {
			for _, key := range captionKeys(i) {
				v, exists := val[key]
				if !exists {
					continue
				}
				if s := extractString(v); s != "" {
					captions = append(captions, s)
				}
				break
			}
		}
	case []any:
		for _, item := range val {
			if s := extractString(item); s != "" {
				captions = append(captions, s)
			}
		}
	default:
		return scrapeCaptions(cleaned), errors.New("captions response is not an object")
	}

	if len(captions) == 0 {
		if scraped := scrapeCaptions(cleaned); len(scraped) > 0 {
			return scraped, nil
		}
		return nil, errors.New("no captions found in response")
	}
	return captions, nil
}

func scrapeCaptions(text string) []string {
	matches := captionScrapeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	byIndex := make(map[int]string)
	var indexes []int
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, seen := byIndex[idx]; seen {
			continue
		}
		value := m[2]
		if unquoted, err := strconv.Unquote(`"` + value + `"`); err == nil {
			value = unquoted
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		byIndex[idx] = value
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	captions := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		captions = append(captions, byIndex[idx])
	}
	return captions
}

var preferredCaptionKeys = []string{"description", "text", "desc", "content", "summary"}

// extractString digs a caption out of whatever shape the model produced.
// Preferred keys win, then the longest string value, then recursion.
func extractString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := extractString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		for _, want := range preferredCaptionKeys {
			for k, inner := range val {
				if !strings.EqualFold(k, want) {
					continue
				}
				if s, ok := inner.(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		longest := ""
		for _, k := range keys {
			if s, ok := val[k].(string); ok && len(strings.TrimSpace(s)) > len(longest) {
				longest = strings.TrimSpace(s)
			}
		}
		if longest != "" {
			return longest
		}

		for _, k := range keys {
			if s := extractString(val[k]); s != "" {
				return s
			}
		}
		if len(val) == 0 {
			return ""
		}
		return truncate(stringify(val), maxFallbackCaption)
	default:
		return truncate(fmt.Sprint(val), maxFallbackCaption)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
