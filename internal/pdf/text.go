package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	"golang.org/x/net/html"
)

// TextRasterizer lays the HTML text out with gofpdf. It ignores CSS but keeps headings,
// paragraphs and tables readable, which is enough when Chrome is not installed.
type TextRasterizer struct{}

func NewTextRasterizer() *TextRasterizer { return &TextRasterizer{} }

type block struct {
	kind  string // h1, h2, h3, p, table
	text  string
	rows  [][]string
	class []string // per row
}

func (TextRasterizer) HTMLToPDF(ctx context.Context, src string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var blocks []block
	collectBlocks(doc, &blocks)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right

	for _, b := range blocks {
		switch b.kind {
		case "h1":
			pdf.SetFont("Helvetica", "B", 15)
			pdf.MultiCell(usable, 8, tr(b.text), "", "L", false)
			pdf.Ln(2)
		case "h2", "h3":
			pdf.SetFont("Helvetica", "B", 11)
			pdf.MultiCell(usable, 6, tr(b.text), "", "L", false)
		case "table":
			writeTable(pdf, tr, b, usable)
			pdf.Ln(3)
		default:
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(usable, 4.5, tr(b.text), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *gofpdf.Fpdf, tr func(string) string, b block, usable float64) {
	cols := 0
	for _, row := range b.rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	w := usable / float64(cols)
	fontSize := 8.0
	if cols > 8 {
		fontSize = 6
	}
	for i, row := range b.rows {
		style := ""
		if i < len(b.class) && b.class[i] == "head" {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, fontSize)
		if len(row) == 1 && cols > 1 {
			// section header spanning the table
			pdf.CellFormat(usable, 5, tr(row[0]), "1", 1, "L", false, 0, "")
			continue
		}
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			ln := 0
			if j == cols-1 {
				ln = 1
			}
			pdf.CellFormat(w, 5, fitText(pdf, tr(cell), w), "1", ln, "L", false, 0, "")
		}
	}
}

// fitText trims s until it fits in width w.
func fitText(pdf *gofpdf.Fpdf, s string, w float64) string {
	for len(s) > 1 && pdf.GetStringWidth(s) > w-1 {
		s = s[:len(s)-1]
	}
	return s
}

func collectBlocks(n *html.Node, out *[]block) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "head", "style", "script":
			return
		case "h1", "h2", "h3", "p":
			if t := normalizeSpace(textOf(n)); t != "" {
				*out = append(*out, block{kind: n.Data, text: t})
			}
			return
		case "table":
			*out = append(*out, tableBlock(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectBlocks(c, out)
	}
}

func tableBlock(n *html.Node) block {
	b := block{kind: "table"}
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inHead bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "thead":
				inHead = true
			case "tr":
				var row []string
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
						row = append(row, normalizeSpace(textOf(c)))
					}
				}
				if len(row) > 0 {
					b.rows = append(b.rows, row)
					class := ""
					if inHead {
						class = "head"
					}
					b.class = append(b.class, class)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inHead)
		}
	}
	walk(n, false)
	return b
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
