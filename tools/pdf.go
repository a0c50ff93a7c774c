package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/chauffeur-ai/chauffeur/workspace"
)

const pdfTextCap = 51200

// HTMLRenderer converts an HTML document into PDF bytes. The browser-backed
// implementation prints through the CDP connection.
type HTMLRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// PDFTool reads and creates PDF documents inside the workspace. Creation
// requires an HTMLRenderer; without one the create action reports that a
// browser is needed.
type PDFTool struct {
	ws       *workspace.Workspace
	renderer HTMLRenderer
}

// NewPDFTool builds the pdf tool. renderer may be nil.
func NewPDFTool(ws *workspace.Workspace, renderer HTMLRenderer) *PDFTool {
	return &PDFTool{ws: ws, renderer: renderer}
}

// Name implements Tool.
func (t *PDFTool) Name() string { return "pdf" }

// Description implements Tool.
func (t *PDFTool) Description() string {
	return "Read text from PDF files, create PDFs from HTML, inspect page counts. " +
		"Actions: read, create, info."
}

// Schema implements Tool.
func (t *PDFTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["read", "create", "info"]},
			"path": {"type": "string", "description": "PDF path relative to the workspace"},
			"pages": {"type": "string", "description": "Page range like \"1-5\" or \"1,3,7\" (read only)"},
			"html": {"type": "string", "description": "HTML document to render (create only)"}
		},
		"required": ["action", "path"]
	}`)
}

// Execute implements Tool.
func (t *PDFTool) Execute(ctx context.Context, args map[string]any) string {
	path := argString(args, "path")
	abs, err := t.ws.Resolve(path)
	if err != nil {
		return fmt.Sprintf("Permission denied: %s is outside the workspace", path)
	}
	switch action := argString(args, "action"); action {
	case "read":
		return t.read(abs, path, argString(args, "pages"))
	case "create":
		return t.create(ctx, abs, path, argString(args, "html"))
	case "info":
		return t.info(abs, path)
	default:
		return fmt.Sprintf("Unknown pdf action: %s", action)
	}
}

func (t *PDFTool) read(abs, path, pageSpec string) string {
	f, r, err := pdf.Open(abs)
	if err != nil {
		return fmt.Sprintf("Error opening %s: %v", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages, err := parsePageRange(pageSpec, total)
	if err != nil {
		return fmt.Sprintf("Invalid page range %q: %v", pageSpec, err)
	}
	var sb strings.Builder
	for _, pageNo := range pages {
		page := r.Page(pageNo)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			fmt.Fprintf(&sb, "--- Page %d (unreadable) ---\n", pageNo)
			continue
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s\n", pageNo, strings.TrimSpace(text))
		if sb.Len() > pdfTextCap {
			return sb.String()[:pdfTextCap] + "\n...[truncated]"
		}
	}
	if sb.Len() == 0 {
		return fmt.Sprintf("%s contains no extractable text", path)
	}
	return sb.String()
}

func (t *PDFTool) create(ctx context.Context, abs, path, html string) string {
	if html == "" {
		return "pdf create requires html content"
	}
	if t.renderer == nil {
		return "PDF creation requires a running browser; connect one first"
	}
	data, err := t.renderer.RenderPDF(ctx, html)
	if err != nil {
		return fmt.Sprintf("Error rendering PDF: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Sprintf("Error writing %s: %v", path, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Sprintf("Error writing %s: %v", path, err)
	}
	return fmt.Sprintf("Created %s (%d bytes)", path, len(data))
}

func (t *PDFTool) info(abs, path string) string {
	stat, err := os.Stat(abs)
	if err != nil {
		return fmt.Sprintf("Error on %s: %v", path, err)
	}
	f, r, err := pdf.Open(abs)
	if err != nil {
		return fmt.Sprintf("Error opening %s: %v", path, err)
	}
	defer f.Close()
	return fmt.Sprintf("%s: %d page(s), %d bytes", path, r.NumPage(), stat.Size())
}

// parsePageRange expands a specifier like "1-5" or "1,3,7" into 1-based page
// numbers clamped to the document. Empty means all pages.
func parsePageRange(spec string, total int) ([]int, error) {
	if spec == "" {
		pages := make([]int, 0, total)
		for i := 1; i <= total; i++ {
			pages = append(pages, i)
		}
		return pages, nil
	}
	var pages []int
	seen := make(map[int]bool)
	add := func(n int) {
		if n >= 1 && n <= total && !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("bad range start %q", lo)
			}
			end, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("bad range end %q", hi)
			}
			if end < start {
				return nil, fmt.Errorf("range %s is reversed", part)
			}
			for n := start; n <= end; n++ {
				add(n)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad page number %q", part)
		}
		add(n)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages in range (document has %d)", total)
	}
	return pages, nil
}
