package render

import (
	"context"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"reactormap/internal/card"
	"reactormap/internal/config"
)

// Snapshot rasterizes doc in a dedicated Chrome instance. Used when the pool
// is disabled.
func Snapshot(doc card.Document, cfg config.Config) ([]byte, error) {
	profileDir, err := createProfileDir(cfg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		allocatorOptions(cfg, profileDir)...)
	defer allocCancel()

	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(cfg.Render.TimeoutSecs) * time.Second
	chromeCtx, cancel = context.WithTimeout(chromeCtx, timeout)
	defer cancel()

	return SnapshotInTab(chromeCtx, doc)
}

// SnapshotInTab rasterizes doc inside a pre-existing chromedp tab context:
// the document is installed as the page content and the viewport is captured
// as PNG at the document's exact pixel dimensions.
func SnapshotInTab(ctx context.Context, doc card.Document) ([]byte, error) {
	var buf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(doc.Width), int64(doc.Height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, doc.HTML).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Give blur filters and font rasterization a beat to settle.
		chromedp.Sleep(200 * time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{
					X:      0,
					Y:      0,
					Width:  float64(doc.Width),
					Height: float64(doc.Height),
					Scale:  1,
				}).
				Do(ctx)
			return err
		}),
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	return buf, nil
}
