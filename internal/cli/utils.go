// Package cli formats knowledge base output for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (text, compact, json)", s)
	}
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	scoreColor  = color.New(color.FgGreen)
	dimColor    = color.New(color.Faint)
)

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, r.ID, r.Question)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	headerColor.Fprintf(w, "\nFound %d results in %dms", response.Total, response.QueryTime)
	if response.Mode != "" {
		dimColor.Fprintf(w, " (%s embeddings)", response.Mode)
	}
	fmt.Fprint(w, "\n\n")
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: ", result.Rank)
	scoreColor.Fprintf(w, "%.4f", result.Score)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "ID: %s\n", result.ID)
	if result.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", result.Category)
	}
	fmt.Fprintf(w, "Source: %s\n", result.Source)
	fmt.Fprintf(w, "\nQ: %s\nA: %s\n", result.Question, utils.Truncate(result.Answer, 300))
	fmt.Fprintln(w)
}

// WriteEntry writes one entry in full.
func WriteEntry(w io.Writer, e *models.KnowledgeEntry, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, e)
	}
	headerColor.Fprintf(w, "%s\n", e.Question)
	fmt.Fprintf(w, "%s\n\n", e.Answer)
	fmt.Fprintf(w, "ID:        %s\n", e.ID)
	if e.Category != "" {
		fmt.Fprintf(w, "Category:  %s\n", e.Category)
	}
	fmt.Fprintf(w, "Source:    %s\n", e.Source)
	if e.SourceURL != "" {
		fmt.Fprintf(w, "URL:       %s\n", e.SourceURL)
	}
	fmt.Fprintf(w, "Model:     %s (%d dims)\n", e.EmbeddingModel, len(e.Embedding))
	fmt.Fprintf(w, "Updated:   %s\n", e.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// WriteEntries writes a listing, one entry per line unless format is JSON.
func WriteEntries(w io.Writer, entries []*models.KnowledgeEntry, format SearchOutputFormat) error {
	if format == OutputJSON {
		if entries == nil {
			entries = []*models.KnowledgeEntry{}
		}
		return writeJSON(w, entries)
	}
	for _, e := range entries {
		category := e.Category
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%s  %-24s %s\n", e.ID, category, utils.Truncate(e.Question, 80))
	}
	dimColor.Fprintf(w, "%d entries\n", len(entries))
	return nil
}

// WriteStats writes the knowledge base status.
func WriteStats(w io.Writer, st *models.Stats, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	headerColor.Fprintln(w, "Knowledge base")
	fmt.Fprintf(w, "  Active entries:    %d\n", st.Store.Active)
	fmt.Fprintf(w, "  Inactive entries:  %d\n", st.Store.Inactive)
	writeCounts(w, "  By category:", st.Store.ByCategory)
	writeCounts(w, "  By source:", st.Store.BySource)
	headerColor.Fprintln(w, "Vector index")
	fmt.Fprintf(w, "  Status:            %s\n", st.Index.Status)
	fmt.Fprintf(w, "  Backend:           %s\n", st.Index.Backend)
	fmt.Fprintf(w, "  Size:              %d\n", st.Index.Size)
	fmt.Fprintf(w, "  Tombstones:        %d\n", st.Index.Tombstones)
	fmt.Fprintf(w, "  Model:             %s (%d dims)\n", st.Index.Model, st.Index.Dimensions)
	headerColor.Fprintln(w, "Embeddings")
	fmt.Fprintf(w, "  Mode:              %s\n", st.EmbeddingMode)
	fmt.Fprintf(w, "  Model:             %s (%d dims)\n", st.Model, st.Dimensions)
	return nil
}

func writeCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-28s %d\n", k, counts[k])
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
