// Package corpus loads reference question/answer sets and seeds them into the knowledge base.
package corpus

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/shika/internal/models"
)

// BuiltinSource tags entries of the built-in general dentistry corpus.
const BuiltinSource = "dental_corpus"

//go:embed data/dental_corpus.yaml
var builtinYAML []byte

// Corpus is a named set of entries. Entries without a source inherit Source.
type Corpus struct {
	Source  string                  `yaml:"source"`
	Entries []models.KnowledgeInput `yaml:"entries"`
}

// Builtin returns the general dentistry corpus shipped with the binary.
func Builtin() *Corpus {
	c, err := parseYAML(builtinYAML, BuiltinSource)
	if err != nil {
		panic(fmt.Sprintf("built-in corpus: %v", err))
	}
	return c
}

// LoadFile reads a corpus from a .yaml, .yml or .xlsx file. The default source is the file name
// without its extension.
func LoadFile(path string) (*Corpus, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	source := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadBytes(content, ext, source)
}

// LoadBytes parses corpus content by extension. ext includes the leading dot.
func LoadBytes(content []byte, ext, defaultSource string) (*Corpus, error) {
	switch ext {
	case ".yaml", ".yml":
		return parseYAML(content, defaultSource)
	case ".xlsx":
		return parseExcel(content, defaultSource)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q (supported: .yaml, .yml, .xlsx)", ext)
	}
}

func parseYAML(content []byte, defaultSource string) (*Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if err := c.normalize(defaultSource); err != nil {
		return nil, err
	}
	return &c, nil
}

var excelColumns = []string{"question", "answer", "category", "source", "source_url"}

// parseExcel reads the first sheet. The first row names the columns; question and answer are required.
func parseExcel(content []byte, defaultSource string) (*Corpus, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("corpus workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &Corpus{Source: defaultSource}, nil
	}

	col := make(map[string]int, len(excelColumns))
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"question", "answer"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("corpus sheet %q has no %q column", sheets[0], required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	c := &Corpus{Source: defaultSource}
	for _, row := range rows[1:] {
		in := models.KnowledgeInput{
			Question:  cell(row, "question"),
			Answer:    cell(row, "answer"),
			Category:  cell(row, "category"),
			Source:    cell(row, "source"),
			SourceURL: cell(row, "source_url"),
		}
		if in.Question == "" && in.Answer == "" {
			continue
		}
		c.Entries = append(c.Entries, in)
	}
	if err := c.normalize(defaultSource); err != nil {
		return nil, err
	}
	return c, nil
}

// normalize fills sources and validates every entry, naming the first invalid one.
func (c *Corpus) normalize(defaultSource string) error {
	c.Source = strings.TrimSpace(c.Source)
	if c.Source == "" {
		c.Source = defaultSource
	}
	for i := range c.Entries {
		if strings.TrimSpace(c.Entries[i].Source) == "" {
			c.Entries[i].Source = c.Source
		}
		if err := c.Entries[i].Validate(); err != nil {
			return fmt.Errorf("corpus entry %d: %w", i+1, err)
		}
	}
	return nil
}
