// Package source locates the source text behind a diagnostic file
// identifier. Identifiers may be local paths, file:// URIs, http(s) URLs,
// s3:// object URIs, or paths inside a packaged build artifact that are
// redirected to a local mirror.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/kamilpajak/deoptviewer/internal/commonroot"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

var (
	// ErrSourceUnavailable wraps every read or fetch failure.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidIdentifier is reported for identifiers that are not a
	// supported URL and not an absolute path.
	ErrInvalidIdentifier = errors.New("File path is not absolute")
)

// Kind is the resolution strategy chosen for an identifier.
type Kind int

const (
	KindInvalid Kind = iota
	KindLocal
	KindFileURI
	KindRemote
	KindRedirected
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindFileURI:
		return "file-uri"
	case KindRemote:
		return "remote"
	case KindRedirected:
		return "redirected"
	case KindObject:
		return "object"
	}
	return "invalid"
}

// Config selects the run-wide resolution mode.
type Config struct {
	// Redirect enables redirected-artifact mode for every identifier.
	Redirect *RedirectRule
	// HTTPClient is used for remote sources. Defaults to a plain client.
	HTTPClient *http.Client
	// RatePerSecond limits remote requests. Zero means unlimited.
	RatePerSecond float64
	// Objects serves s3:// identifiers. When nil they are invalid.
	Objects ObjectStore
}

// Locator resolves identifiers to source text. It is safe for concurrent use.
type Locator struct {
	redirect *RedirectRule
	client   *http.Client
	limiter  *rate.Limiter
	objects  ObjectStore
	goos     string
}

// New creates a Locator for one run.
func New(cfg Config) *Locator {
	l := &Locator{
		client:  cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Inf, 1),
		objects: cfg.Objects,
		goos:    runtime.GOOS,
	}
	if l.client == nil {
		l.client = &http.Client{}
	}
	if cfg.RatePerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	if cfg.Redirect != nil {
		rule := cfg.Redirect.withDefaults()
		l.redirect = &rule
	}
	return l
}

// Classify picks the strategy for id. Redirected mode takes precedence over
// every identifier scheme.
func (l *Locator) Classify(id string) Kind {
	switch {
	case l.redirect != nil:
		return KindRedirected
	case strings.HasPrefix(id, "http://"), strings.HasPrefix(id, "https://"):
		return KindRemote
	case l.objects != nil && strings.HasPrefix(id, objectScheme):
		return KindObject
	case strings.HasPrefix(id, "file://"):
		return KindFileURI
	case isAbs(l.goos, id):
		return KindLocal
	}
	return KindInvalid
}

// Strategy names the strategy Classify picks for id.
func (l *Locator) Strategy(id string) string {
	return l.Classify(id).String()
}

// Resolve fetches the source text for id. root is the report's common root
// and only shapes RelativePath. Failures are returned in SrcError, never as
// an error.
func (l *Locator) Resolve(ctx context.Context, id, root string) models.Resolution {
	var (
		res models.Resolution
		err error
	)

	switch l.Classify(id) {
	case KindRedirected:
		res, err = l.resolveRedirected(id)
	case KindRemote:
		res, err = l.resolveRemote(ctx, id, root)
	case KindObject:
		res, err = l.resolveObject(ctx, id, root)
	case KindFileURI:
		res, err = l.resolveFileURI(id, root)
	case KindLocal:
		res, err = l.resolveLocal(id, id, root)
	default:
		res = models.Resolution{RelativePath: commonroot.Relative(id, root)}
		err = ErrInvalidIdentifier
	}

	if err != nil {
		res.Src = ""
		res.SrcError = err.Error()
	}
	return res
}

func (l *Locator) resolveRedirected(id string) (models.Resolution, error) {
	target, rel := l.redirect.Rewrite(id)
	res := models.Resolution{SrcPath: target, RelativePath: rel}

	src, err := readText(target)
	if err != nil {
		return res, err
	}
	res.Src = src
	return res, nil
}

func (l *Locator) resolveFileURI(id, root string) (models.Resolution, error) {
	p, err := fileURIToPath(id, l.goos)
	if err != nil {
		return models.Resolution{RelativePath: commonroot.Relative(id, root)},
			fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return l.resolveLocal(id, p, root)
}

// resolveLocal reads path on behalf of identifier id.
func (l *Locator) resolveLocal(id, path, root string) (models.Resolution, error) {
	res := models.Resolution{RelativePath: commonroot.Relative(id, root)}

	if !isAbs(l.goos, path) {
		return res, ErrInvalidIdentifier
	}
	res.SrcPath = path

	src, err := readText(path)
	if err != nil {
		return res, err
	}
	res.Src = src
	return res, nil
}

// toText decodes data as UTF-8, replacing invalid sequences.
func toText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}
