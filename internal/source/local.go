package source

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// windowsDriveURI matches file URIs that carry an explicit drive letter.
var windowsDriveURI = regexp.MustCompile(`^file:///[a-zA-Z]:`)

// defaultDrive is assumed for drive-less file URIs on Windows.
const defaultDrive = "C:"

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return toText(data), nil
}

// fileURIToPath converts a file:// URI to a local path for goos. On
// Windows a URI without a drive letter is assumed to live on C:.
func fileURIToPath(uri, goos string) (string, error) {
	windows := goos == "windows"

	if windows && strings.HasPrefix(uri, "file:///") && !windowsDriveURI.MatchString(uri) {
		uri = "file:///" + defaultDrive + "/" + strings.TrimPrefix(uri, "file:///")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("invalid file URI scheme %q", u.Scheme)
	}

	host := u.Host
	if host == "localhost" {
		host = ""
	}

	if !windows {
		if host != "" {
			return "", fmt.Errorf("file URI host must be empty or localhost, got %q", u.Host)
		}
		return u.Path, nil
	}

	if host != "" {
		return `\\` + host + toWindowsSeparators(u.Path), nil
	}
	return toWindowsSeparators(strings.TrimPrefix(u.Path, "/")), nil
}

// toWindowsSeparators converts slashes to backslashes and collapses runs of
// separators, keeping a leading UNC pair.
func toWindowsSeparators(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)

	var b strings.Builder
	if strings.HasPrefix(p, `\\`) {
		b.WriteString(`\\`)
		p = strings.TrimLeft(p, `\`)
	}
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' && i > 0 && p[i-1] == '\\' {
			continue
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

// isAbs reports whether p is an absolute path on goos.
func isAbs(goos, p string) bool {
	if goos != "windows" {
		return strings.HasPrefix(p, "/")
	}
	// Rooted paths without a drive letter count too.
	if strings.HasPrefix(p, `\`) || strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && isLetter(p[0]) && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
