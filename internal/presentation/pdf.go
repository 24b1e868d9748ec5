package presentation

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderHTML converts presentation markdown to HTML with GFM extensions, so
// the emphasis and any term tables render the same on screen and in the PDF.
func RenderHTML(markdown string) (string, error) {
	var out strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

// ChromiumPDFRenderer prints a deal presentation to PDF through headless
// Chromium.
type ChromiumPDFRenderer struct {
	chromePath string
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{chromePath: detectChromePath()}
}

// Render prints the presentation markdown as an A4 PDF. lenderName appears in
// the document header so a broker juggling several enquiries can tell the
// printouts apart.
func (r *ChromiumPDFRenderer) Render(ctx context.Context, lenderName, markdown string) ([]byte, error) {
	htmlDoc, err := buildDocument(lenderName, markdown)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

const documentCSS = `
body{font-family:Georgia,serif;color:#1c1917;max-width:720px;margin:0 auto;padding:1rem;line-height:1.5;}
h1{font-size:1.3rem;border-bottom:2px solid #0f766e;padding-bottom:0.3rem;}
strong{color:#0f766e;}
ul{padding-left:1.2rem;}
li{margin:0.15rem 0;}
.doc-header{color:#44403c;font-size:0.85rem;margin-bottom:1rem;}
@media print{@page{size:A4;margin:12mm;}}
`

func buildDocument(lenderName, markdown string) (string, error) {
	content, err := RenderHTML(markdown)
	if err != nil {
		return "", err
	}
	header := "<div class='doc-header'><strong>Deal Presentation</strong>"
	if lenderName != "" {
		header += " &middot; " + html.EscapeString(lenderName)
	}
	header += " &middot; " + time.Now().Format("2 January 2006") + "</div>"

	return "<!doctype html><html><head><meta charset='utf-8'><title>Deal Presentation</title>" +
		"<style>" + documentCSS + "</style></head><body>" +
		header + content + "</body></html>", nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
