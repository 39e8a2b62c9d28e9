// Package preview renders a generated bundle in headless Chromium and
// returns the visible page text.
package preview

import (
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/kamilpajak/deoptviewer/internal/bundle"
	"github.com/kamilpajak/deoptviewer/internal/server"
)

// maxTextLength caps the returned page text.
const maxTextLength = 50000

// ErrUnavailable is returned when the playwright driver or browsers are not
// installed.
var ErrUnavailable = errors.New("playwright not installed. Run: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium")

// Snapshot opens url in a headless browser, waits for the summary table and
// returns the page's text.
func Snapshot(url string) ([]byte, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	if _, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("could not navigate: %w", err)
	}

	if err := page.Locator("#summary").WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(5000),
	}); err != nil {
		return nil, fmt.Errorf("viewer did not render: %w", err)
	}

	// Open the top-ranked file so its source shows up in the text.
	first := page.Locator("#summary tbody a").First()
	if n, _ := page.Locator("#summary tbody a").Count(); n > 0 {
		first.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(500),
		})
	}

	content, err := page.Locator("body").InnerText()
	if err != nil {
		return nil, fmt.Errorf("could not get page content: %w", err)
	}

	if len(content) > maxTextLength {
		content = content[:maxTextLength]
	}

	return []byte(content), nil
}

// SnapshotBundle serves the bundle in dir on loopback and captures its
// rendered text.
func SnapshotBundle(dir string) ([]byte, error) {
	if !IsAvailable() {
		return nil, ErrUnavailable
	}

	srv, err := server.Start(dir, "")
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Stop()

	snapshot, err := Snapshot(srv.URL(bundle.IndexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}

	return snapshot, nil
}

// Install installs playwright browsers
func Install() error {
	return playwright.Install()
}

// IsAvailable checks if playwright browsers are installed
func IsAvailable() bool {
	pw, err := playwright.Run()
	if err != nil {
		return false
	}
	pw.Stop()
	return true
}
