// Package extract turns an uploaded document into a plain UTF-8 text blob.
//
// Plain-text formats are read directly and decoded to UTF-8 from the sniffed
// charset (UTF-16 spreadsheet exports included). HTML exports (for example a word
// processor's "save as web page") are flattened to text with table cells
// separated by tabs and rows by newlines. Office documents are handed to an
// external converter command configured by the operator (for example
// "pandoc -t plain" or "pdftotext -layout"); the file path is appended as the
// final argument and the command's stdout is the extracted text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"mime"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnsupported is returned when no extraction path exists for a document type.
var ErrUnsupported = errors.New("unsupported document type")

var (
	htmlRowBreak  = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6])\s*>`)
	htmlCellBreak = regexp.MustCompile(`(?i)</t[dh]\s*>`)
	stripMarkup   = bluemonday.StrictPolicy()
)

// Config configures the external converter.
type Config struct {
	Command string
	Timeout time.Duration
}

// Extractor extracts text from stored uploads.
type Extractor struct {
	command []string
	timeout time.Duration
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{command: strings.Fields(cfg.Command), timeout: cfg.Timeout}
}

// Extract returns the text content of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect document type: %w", err)
	}
	if isText(mt) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		raw = decodeText(raw, mt)
		if isHTML(mt) {
			return htmlToText(cleanText(raw)), nil
		}
		return cleanText(raw), nil
	}
	if len(e.command) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
	}
	return e.runCommand(ctx, path)
}

func (e *Extractor) runCommand(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string{}, e.command[1:]...), path)
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("run %s: %s", e.command[0], msg)
	}
	return cleanText(out), nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func isHTML(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/html") {
			return true
		}
	}
	return false
}

func htmlToText(markup string) string {
	markup = htmlRowBreak.ReplaceAllString(markup, "\n")
	markup = htmlCellBreak.ReplaceAllString(markup, "\t")
	return html.UnescapeString(stripMarkup.Sanitize(markup))
}

// decodeText converts raw to UTF-8 using the charset mimetype attached to the
// detected type. Unknown charsets are passed through unchanged.
func decodeText(raw []byte, mt *mimetype.MIME) []byte {
	var decoder transform.Transformer
	switch cs := charsetOf(mt); cs {
	case "", "utf-8", "us-ascii":
		return raw
	case "utf-16le":
		decoder = unicode.BOMOverride(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder())
	case "utf-16be":
		decoder = unicode.BOMOverride(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder())
	default:
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return raw
		}
		decoder = enc.NewDecoder()
	}
	out, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return raw
	}
	return out
}

func charsetOf(mt *mimetype.MIME) string {
	_, params, err := mime.ParseMediaType(mt.String())
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// cleanText drops the UTF-8 BOM, invalid sequences and NUL bytes, none of
// which Postgres accepts in text columns.
func cleanText(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	return strings.ReplaceAll(strings.ToValidUTF8(string(raw), ""), "\x00", "")
}
