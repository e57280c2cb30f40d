package store

import (
	"encoding/json"

	"crossref/internal/types"
)

// MaxJSONChars caps every JSON column.
const MaxJSONChars = 4000

// encodeList marshals wrap(items[:n]) for the largest n that fits within
// limit. The result is always valid JSON.
func encodeList[T any](items []T, wrap func([]T) any, limit int) string {
	for n := len(items); n >= 0; n-- {
		data, err := json.Marshal(wrap(items[:n]))
		if err == nil && len(data) <= limit {
			return string(data)
		}
	}
	return "{}"
}

// EncodeCapped marshals v, replacing it with a truncated preview when the
// encoding exceeds limit characters.
func EncodeCapped(v any, limit int) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	if len(data) <= limit {
		return string(data)
	}
	preview := string(data)
	for size := limit / 2; size > 0; size /= 2 {
		out, _ := json.Marshal(map[string]any{"truncated": true, "preview": truncateRunes(preview, size)})
		if len(out) <= limit {
			return string(out)
		}
	}
	return `{"truncated":true}`
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type staticPayload struct {
	Type    types.MatchType `json:"match_type"`
	Pattern string          `json:"pattern"`
	Context string          `json:"context"`
}

// EncodeStatic renders the black_book_matches column.
func EncodeStatic(matches []types.StaticMatch) string {
	items := make([]staticPayload, 0, len(matches))
	for _, m := range matches {
		items = append(items, staticPayload{Type: m.Type, Pattern: m.Pattern, Context: m.Context})
	}
	return encodeList(items, func(s []staticPayload) any { return s }, MaxJSONChars)
}

type onlinePayload struct {
	TotalResults int                 `json:"total_results"`
	Tier         types.Tier          `json:"confidence"`
	Status       types.SearchStatus  `json:"status"`
	Variant      string              `json:"variant,omitempty"`
	Variants     []string            `json:"variants_tried,omitempty"`
	Rationale    string              `json:"rationale,omitempty"`
	Error        string              `json:"error,omitempty"`
	Entries      []types.SearchEntry `json:"snippets"`
}

// EncodeOnline renders the doj_results column.
func EncodeOnline(res *types.OnlineResult) string {
	if res == nil {
		return "{}"
	}
	base := onlinePayload{
		TotalResults: res.TotalResults,
		Tier:         res.Tier,
		Status:       res.Status,
		Variant:      res.Variant,
		Variants:     res.Variants,
		Rationale:    res.Rationale,
		Error:        res.Error,
	}
	return encodeList(res.Entries, func(e []types.SearchEntry) any {
		p := base
		p.Entries = e
		return p
	}, MaxJSONChars)
}
