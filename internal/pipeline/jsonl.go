package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hoanghai1803/paperfeed/internal/models"
)

// maxLineBytes bounds one JSONL record. Abstracts are truncated upstream, so
// real records stay far below this.
const maxLineBytes = 1 << 20

// WriteJSONL writes one JSON object per paper to path, creating parent
// directories as needed.
func WriteJSONL(path string, papers []models.Paper) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, p := range papers {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encoding paper %q: %w", p.Link, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return f.Close()
}

// ReadJSONL reads papers written by WriteJSONL. Blank lines are skipped.
func ReadJSONL(path string) ([]models.Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	var papers []models.Paper
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var p models.Paper
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("%s:%d: decoding paper: %w", path, line, err)
		}
		papers = append(papers, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	return papers, nil
}
