package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/siherrmann/graphrag/model"
)

var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// CleanModelOutput strips reasoning blocks, code fences and a leading json tag
// from a model answer and cuts it down to the outermost JSON object.
func CleanModelOutput(output string) string {
	output = thinkBlockPattern.ReplaceAllString(output, "")
	output = strings.TrimSpace(output)
	output = strings.Trim(output, "`")
	output = strings.TrimSpace(output)
	if strings.HasPrefix(output, "json") {
		output = strings.TrimSpace(strings.TrimPrefix(output, "json"))
	}

	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start >= 0 && end > start {
		output = output[start : end+1]
	}

	return output
}

// ParseCandidateGraph cleans a model answer and decodes it into a validated candidate graph.
func ParseCandidateGraph(output string) (*model.CandidateGraph, error) {
	cleaned := CleanModelOutput(output)
	if cleaned == "" {
		return nil, model.NewKindError(model.ErrExtraction, "parse candidate graph", fmt.Errorf("empty model output"))
	}

	// Repair only output that does not decode, valid keys may contain ", ".
	graph := &model.CandidateGraph{}
	err := json.Unmarshal([]byte(cleaned), graph)
	if err != nil {
		graph = &model.CandidateGraph{}
		if repairErr := json.Unmarshal([]byte(repairJSON(cleaned)), graph); repairErr != nil {
			return nil, model.NewKindError(model.ErrExtraction, "parse candidate graph", err)
		}
	}

	err = graph.Validate()
	if err != nil {
		return nil, err
	}

	return graph, nil
}
