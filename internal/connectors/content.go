package connectors

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// decodeContent extracts the subject and a plain-text body from a raw RFC822
// message. Vendors reply in whatever form their mail client produces, so an
// HTML-only body is flattened to text and proposal tables attached as PDF or
// XLSX are appended to the body for the extractor to see.
func decodeContent(raw []byte) (subject, text string, err error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", "", err
	}

	text = strings.TrimSpace(env.Text)
	if text == "" && env.HTML != "" {
		text = htmlToText(env.HTML)
	}

	var parts []string
	if text != "" {
		parts = append(parts, text)
	}
	for _, att := range env.Attachments {
		filename := strings.ToLower(strings.TrimSpace(att.FileName))
		var extra string
		switch {
		case strings.HasSuffix(filename, ".pdf"):
			extra = pdfToText(att.Content)
		case strings.HasSuffix(filename, ".xlsx"), strings.HasSuffix(filename, ".xls"):
			extra = xlsxToText(att.Content)
		}
		if extra != "" {
			parts = append(parts, "--- attachment: "+att.FileName+" ---\n"+extra)
		}
	}

	return env.GetHeader("Subject"), strings.Join(parts, "\n\n"), nil
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style").Remove()
	return collapseBlankLines(doc.Text())
}

func pdfToText(content []byte) string {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ""
	}
	var builder strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}
	return collapseBlankLines(builder.String())
}

func xlsxToText(content []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func collapseBlankLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
