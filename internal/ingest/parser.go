package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Parser extracts plain text from uploaded documents. The whole document
// becomes one string that is later embedded in the model prompt, so the
// output is normalized and capped at maxChars runes.
type Parser struct {
	maxChars int
}

func NewParser(maxChars int) *Parser {
	if maxChars <= 0 {
		maxChars = 400_000
	}
	return &Parser{maxChars: maxChars}
}

// Extract dispatches on the file extension. Unknown extensions are treated
// as plain text.
func (p *Parser) Extract(filename, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return p.extractPDF(path)
	case ".epub":
		return p.extractEPUB(path)
	default:
		return p.extractText(path)
	}
}

func (p *Parser) extractPDF(path string) (string, error) {
	// Try pdftotext first (better support for complex/Chinese PDFs)
	if text, err := p.extractPDFWithPdftotext(path); err == nil && text != "" {
		return text, nil
	}
	// Fallback to Go library
	return p.extractPDFWithGoLib(path)
}

// extractPDFWithPdftotext uses the system pdftotext tool (poppler-utils)
func (p *Parser) extractPDFWithPdftotext(path string) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not found: %w", err)
	}
	cmd := exec.Command("pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	text := normalizeText(string(output))
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return p.cap(text), nil
}

// extractPDFWithGoLib uses the Go PDF library (fallback)
func (p *Parser) extractPDFWithGoLib(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	totalPages := reader.NumPage()
	var pages []string
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		if text = normalizeText(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return p.cap(strings.Join(pages, "\n")), nil
}

func (p *Parser) extractEPUB(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	defer reader.Close()
	var sections []string
	for _, file := range reader.File {
		name := strings.ToLower(file.Name)
		if !(strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm")) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("read epub file: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read epub content: %w", err)
		}
		doc, err := html.Parse(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("parse epub html: %w", err)
		}
		if text := normalizeText(extractText(doc)); text != "" {
			sections = append(sections, text)
		}
	}
	if len(sections) == 0 {
		return "", fmt.Errorf("no text extracted from epub")
	}
	return p.cap(strings.Join(sections, "\n")), nil
}

func (p *Parser) extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	text := normalizeText(string(data))
	if text == "" {
		return "", fmt.Errorf("file contains no text")
	}
	return p.cap(text), nil
}

func (p *Parser) cap(text string) string {
	runes := []rune(text)
	if len(runes) <= p.maxChars {
		return text
	}
	return strings.TrimSpace(string(runes[:p.maxChars]))
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}
