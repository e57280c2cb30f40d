// Package corpus loads the static reference text and finds names in it.
package corpus

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/filetype"
	"github.com/ledongthuc/pdf"

	"crossref/internal/logging"
)

// Corpus is the reference text, loaded once and read-only afterwards.
type Corpus struct {
	Source string
	Text   string
	Pages  int
}

// FromText wraps already-loaded text.
func FromText(source, text string) *Corpus {
	return &Corpus{Source: source, Text: strings.ToValidUTF8(text, " ")}
}

// Load reads a corpus from a plain text file, a gzip-compressed text file, or a
// PDF (text extracted page by page). The format is sniffed from the file
// header, then from the extension.
func Load(path string) (*Corpus, error) {
	timer := logging.StartTimer(logging.CategoryCorpus, "load corpus")
	defer timer.Stop()

	kind, err := sniff(path)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}

	var c *Corpus
	switch kind {
	case "pdf":
		c, err = loadPDF(path)
	case "gz":
		c, err = loadGzip(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			c = FromText(path, string(data))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}
	if strings.TrimSpace(c.Text) == "" {
		return nil, fmt.Errorf("load corpus %s: no text", path)
	}

	logging.Corpus("Loaded corpus %s: %d bytes, %d pages", path, len(c.Text), c.Pages)
	return c, nil
}

// sniff returns "pdf", "gz" or "text".
func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]

	switch {
	case filetype.Is(head, "pdf"):
		return "pdf", nil
	case filetype.Is(head, "gz"):
		return "gz", nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf", nil
	case ".gz":
		return "gz", nil
	}
	logging.CorpusDebug("%s: no binary signature, reading as text", path)
	return "text", nil
}

func loadGzip(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return FromText(path, string(data)), nil
}

func loadPDF(path string) (*Corpus, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := pageText(p)
		if err != nil {
			logging.Get(logging.CategoryCorpus).Warn("page %d of %s: %v", i, path, err)
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	c := FromText(path, buf.String())
	c.Pages = pages
	return c, nil
}

// pageText rebuilds lines from positioned text runs, falling back to the
// library's plain-text extraction.
func pageText(p pdf.Page) (string, error) {
	rows, err := p.GetTextByRow()
	if err != nil || len(rows) == 0 {
		return p.GetPlainText(nil)
	}

	var buf bytes.Buffer
	for _, row := range rows {
		if row == nil || len(row.Content) == 0 {
			continue
		}
		runs := make([]pdf.Text, len(row.Content))
		copy(runs, row.Content)
		sort.Slice(runs, func(i, j int) bool { return runs[i].X < runs[j].X })

		for i, t := range runs {
			if i > 0 {
				prev := runs[i-1]
				// A visible horizontal gap is a word break.
				if t.X-(prev.X+prev.W) > prev.FontSize*0.2 {
					buf.WriteByte(' ')
				}
			}
			buf.WriteString(t.S)
		}
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}
