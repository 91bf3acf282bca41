package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Words accepts either a JSON string or a list of scalars. A list is joined
// with single spaces, matching how free-form input is passed to the crews.
type Words []string

func (w *Words) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*w = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(trimmed, &single); err == nil {
		*w = Words{single}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}

	out := make(Words, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(bytes.TrimSpace(item)))
	}
	*w = out
	return nil
}

// Join returns the words separated by single spaces.
func (w Words) Join() string {
	return strings.TrimSpace(strings.Join(w, " "))
}

type AnalyseRequest struct {
	InputData Words `json:"inputData"`
}

type TripRequest struct {
	TravelFrom Words `json:"travel_from"`
	TravelTo   Words `json:"travel_to"`
	Date       Words `json:"date"`
	Hobby      Words `json:"hobby"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

type EventDTO struct {
	Timestamp string `json:"timestamp"`
	Data      string `json:"data"`
}

type JobStatusResponse struct {
	JobID  string     `json:"job_id"`
	Status string     `json:"status"`
	Result any        `json:"result"`
	Events []EventDTO `json:"events"`
}

type JobResultResponse struct {
	JobID      string `json:"job_id"`
	ResultKind string `json:"result_kind"`
	Result     string `json:"result"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID     string `json:"job_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
