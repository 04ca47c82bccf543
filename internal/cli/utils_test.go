package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/shika/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "brushing frequency",
		QueryTime: 42,
		Total:     1,
		Mode:      "fallback",
		Results: []*models.SearchResult{
			{
				ID:       "kb-1",
				Rank:     1,
				Score:    0.4286,
				Question: "How often should I brush my teeth?",
				Answer:   "Brush twice a day for two minutes.",
				Category: "oral_hygiene",
				Source:   "dental_corpus",
			},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != response.Query || decoded.QueryTime != response.QueryTime || decoded.Mode != "fallback" {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].ID != "kb-1" {
		t.Errorf("decoded results = %+v", decoded.Results)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 results in 42ms", "fallback", "kb-1", "Category: oral_hygiene", "Q: How often should I brush my teeth?", "A: Brush twice a day"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("compact lines = %q", lines)
	}
	fields := strings.Split(lines[0], "\t")
	if len(fields) != 4 || fields[0] != "1" || fields[1] != "0.4286" || fields[2] != "kb-1" {
		t.Errorf("compact line = %q", lines[0])
	}
}

func TestWriteSearchResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{Results: []*models.SearchResult{}}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    SearchOutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", OutputCompact, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteEntries(t *testing.T) {
	entries := []*models.KnowledgeEntry{
		{ID: "a", Question: "Q one", Category: "oral_hygiene"},
		{ID: "b", Question: "Q two"},
	}
	var buf bytes.Buffer
	if err := WriteEntries(&buf, entries, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Q one") || !strings.Contains(out, "2 entries") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	if err := WriteEntries(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON listing = %q", buf.String())
	}
}

func TestWriteEntry(t *testing.T) {
	e := &models.KnowledgeEntry{
		ID:             "kb-1",
		Question:       "What is a root canal?",
		Answer:         "A procedure to treat infected pulp.",
		Source:         "dental_corpus",
		SourceURL:      "https://example.org/root-canal",
		Embedding:      make([]float32, 128),
		EmbeddingModel: "basic-text-similarity",
		UpdatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	var buf bytes.Buffer
	if err := WriteEntry(&buf, e, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"What is a root canal?", "basic-text-similarity (128 dims)", "https://example.org/root-canal", "2026-01-02 03:04:05"} {
		if !strings.Contains(out, want) {
			t.Errorf("entry output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStats(t *testing.T) {
	st := &models.Stats{
		Store: models.StoreStats{Active: 3, ByCategory: map[string]int64{"b": 1, "a": 2}},
		Index: models.IndexStats{Status: "ready", Size: 3, Backend: "memory"},
	}
	var buf bytes.Buffer
	if err := WriteStats(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, "    a ") > strings.Index(out, "    b ") {
		t.Errorf("categories not sorted:\n%s", out)
	}
	if !strings.Contains(out, "ready") {
		t.Errorf("missing index status:\n%s", out)
	}
}
