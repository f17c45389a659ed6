// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"encoding/json"
	"strconv"
	"strings"
)

// parseJudgmentText extracts a Judgment from the judge's line-oriented
// response format:
//
//	HAS_EDGE: true
//	DEPENDENCY_TYPE: partial
//	CONFIDENCE: 0.8
//	PARAM_MAPPING: {"result.path": "file_path"}
//	REASONING: ...
//
// Unparseable fields fall back to their zero judgments (has_edge=false,
// confidence=0, type=none) rather than failing the whole response; a judge
// that omits HAS_EDGE entirely simply yields no edge.
func parseJudgmentText(text string) *Judgment {
	j := &Judgment{
		DependencyType: DependencyNone,
		ParamMapping:   map[string]string{},
	}
	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(upper, "HAS_EDGE:"):
			v := strings.ToLower(valueAfterColon(line))
			j.HasEdge = v == "true" || v == "yes" || v == "1" || v == "y"
		case strings.HasPrefix(upper, "CONFIDENCE:"):
			if f, err := strconv.ParseFloat(valueAfterColon(line), 64); err == nil {
				j.Confidence = f
			}
		case strings.HasPrefix(upper, "DEPENDENCY_TYPE:"):
			j.DependencyType = ParseDependencyType(strings.ToLower(valueAfterColon(line)))
		case strings.HasPrefix(upper, "PARAM_MAPPING:"):
			v := valueAfterColon(line)
			if strings.ToUpper(v) == "NONE" || v == "" {
				break
			}
			var m map[string]string
			if err := json.Unmarshal([]byte(v), &m); err == nil {
				j.ParamMapping = m
			}
		case strings.HasPrefix(upper, "REASONING:"):
			j.Reasoning = valueAfterColon(line)
		}
	}
	return j
}

func valueAfterColon(line string) string {
	_, after, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(after)
}

// stripCodeFence removes a leading ```json / ``` marker and a trailing ```
// marker from a model response. Judges frequently wrap JSON answers in
// markdown fences despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// filterResponse is the semantic filter judge's JSON reply.
type filterResponse struct {
	FilteredParams []string `json:"filtered_params"`
	Reasoning      string   `json:"reasoning"`
}

// parseFilterText parses the semantic filter response. On malformed JSON it
// returns an empty filter list and a parse-error note so the caller can fall
// back to the name-filtered field set.
func parseFilterText(text string) filterResponse {
	cleaned := stripCodeFence(text)
	var r filterResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		snippet := cleaned
		if len(snippet) > 100 {
			snippet = snippet[:100]
		}
		return filterResponse{Reasoning: "parse error: " + snippet}
	}
	if r.Reasoning == "" {
		r.Reasoning = "no reasoning provided"
	}
	return r
}
