package sections

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and returns the trimmed body.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// fields is the top level of a decoded JSON object.
type fields map[string]json.RawMessage

func (f fields) has(key string) bool {
	raw, ok := f[key]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fields) isArray(key string) bool {
	raw, ok := f[key]
	return ok && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
}

// decodeObject strips fences and decodes content into out, returning the
// top-level keys for required-key checks. Optional fields of the wrong type
// are coerced or left empty rather than failing the section; see
// lenientHook.
func decodeObject(op, content string, out any) (fields, error) {
	body := []byte(stripFences(content))

	var top fields
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &plan.MalformedResponseError{Op: op, Reason: "response is not a JSON object", Err: err}
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &plan.MalformedResponseError{Op: op, Reason: "response is not a JSON object", Err: err}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       lenientHook,
		Result:           out,
	})
	if err != nil {
		return nil, &plan.MalformedResponseError{Op: op, Reason: "response does not match section shape", Err: err}
	}
	if err := dec.Decode(raw); err != nil {
		return nil, &plan.MalformedResponseError{Op: op, Reason: "response does not match section shape", Err: err}
	}
	return top, nil
}

// lenientHook reshapes a decoded JSON value to fit its target field.
// Numbers and booleans become strings, numeric strings such as "20+" or
// "$1,200" become their leading number, a lone string becomes a one-element
// string list, and anything else that does not fit becomes the zero value.
func lenientHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	switch to.Kind() {
	case reflect.String:
		switch v := data.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return "", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		switch v := data.(type) {
		case float64:
			return v, nil
		case string:
			return leadingNumber(v), nil
		}
		return 0.0, nil
	case reflect.Slice:
		switch v := data.(type) {
		case []any:
			return v, nil
		case string:
			if to.Elem().Kind() == reflect.String {
				return []any{v}, nil
			}
		}
		return []any{}, nil
	case reflect.Struct:
		if v, ok := data.(map[string]any); ok {
			return v, nil
		}
		return map[string]any{}, nil
	}
	return data, nil
}

// leadingNumber reads the first number in s, skipping thousands separators.
// It returns 0 when s holds no digits.
func leadingNumber(s string) float64 {
	start := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return 0
	}

	var b strings.Builder
	if start > 0 && s[start-1] == '-' {
		b.WriteByte('-')
	}
	dot := false
scan:
	for _, r := range s[start:] {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',':
		case r == '.' && !dot:
			dot = true
			b.WriteRune(r)
		default:
			break scan
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(b.String(), "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func missing(op string, keys ...string) error {
	return &plan.MalformedResponseError{Op: op, Reason: "missing required key " + strings.Join(keys, " or ")}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func fillOverview(o *plan.Overview) {
	o.TargetMarket.Demographics = orEmpty(o.TargetMarket.Demographics)
	o.TargetMarket.Psychographics = orEmpty(o.TargetMarket.Psychographics)
	o.Steps = orEmpty(o.Steps)
	for i := range o.Steps {
		st := &o.Steps[i]
		st.CriticalFactors = orEmpty(st.CriticalFactors)
		st.Tasks = orEmpty(st.Tasks)
		for j := range st.Tasks {
			st.Tasks[j].Resources = orEmpty(st.Tasks[j].Resources)
			st.Tasks[j].Metrics = orEmpty(st.Tasks[j].Metrics)
		}
	}
	o.KeyTraits = orEmpty(o.KeyTraits)
}

func fillCompetitors(cs []plan.Competitor) []plan.Competitor {
	cs = orEmpty(cs)
	for i := range cs {
		cs[i].Strengths = orEmpty(cs[i].Strengths)
		cs[i].Weaknesses = orEmpty(cs[i].Weaknesses)
		cs[i].UniqueSellingPoints = orEmpty(cs[i].UniqueSellingPoints)
	}
	return cs
}

func fillRisks(r *plan.RiskAssessment) {
	r.MarketRisks = orEmpty(r.MarketRisks)
	r.FinancialRisks = orEmpty(r.FinancialRisks)
	r.OperationalRisks = orEmpty(r.OperationalRisks)
}

func fillResearch(r *plan.Research) {
	r.Projects = orEmpty(r.Projects)
	for i := range r.Projects {
		p := &r.Projects[i]
		p.Objectives = orEmpty(p.Objectives)
		p.KeyFindings = orEmpty(p.KeyFindings)
		p.TechnicalChallenges = orEmpty(p.TechnicalChallenges)
		p.Resources = orEmpty(p.Resources)
	}
	r.Trends = orEmpty(r.Trends)
}

func fillMarketing(m *plan.MarketingStrategy) {
	m.Channels = orEmpty(m.Channels)
	for i := range m.Channels {
		m.Channels[i].Tactics = orEmpty(m.Channels[i].Tactics)
	}
	m.Timeline = orEmpty(m.Timeline)
	for i := range m.Timeline {
		m.Timeline[i].Activities = orEmpty(m.Timeline[i].Activities)
		m.Timeline[i].Goals = orEmpty(m.Timeline[i].Goals)
	}
	m.KPIs = orEmpty(m.KPIs)
	m.BudgetAllocation.Breakdown = orEmpty(m.BudgetAllocation.Breakdown)
}

func fillKeyword(k *plan.TrendingKeyword) {
	k.RelatedEvents = orEmpty(k.RelatedEvents)
	k.IndustryFocus = orEmpty(k.IndustryFocus)
	k.GeographicRelevance = orEmpty(k.GeographicRelevance)
	if k.MarketImpact == "" {
		k.MarketImpact = "Medium"
	}
}
