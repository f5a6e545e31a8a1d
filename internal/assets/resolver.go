// Package assets serves the embedded frontend bundle with single-page
// application fallback.
package assets

import (
	"io/fs"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/pkg/errors"
)

// RootDocument is served for "/" and for any path missing from the bundle
const RootDocument = "index.html"

// ErrNoRootDocument means the bundle was packaged without RootDocument
var ErrNoRootDocument = errors.New("root document missing from asset bundle")

// Entry is one immutable file of the bundle
type Entry struct {
	Path        string
	Data        []byte
	ContentType string
}

// Resolver maps request paths to bundle entries. The bundle is indexed once
// at construction; lookups never touch the file system afterwards.
type Resolver struct {
	entries map[string]Entry
}

// New indexes every regular file of fsys
func New(fsys fs.FS) (*Resolver, error) {
	entries := make(map[string]Entry)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return errors.Wrapf(err, "failed to read asset %s", p)
		}
		entries[p] = Entry{
			Path:        p,
			Data:        data,
			ContentType: contentType(p),
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to index assets")
	}

	return &Resolver{entries: entries}, nil
}

// Empty returns a resolver with no files; every lookup is a 404
func Empty() *Resolver {
	return &Resolver{entries: map[string]Entry{}}
}

func contentType(p string) string {
	ext := path.Ext(p)
	if ext == "" {
		return fiber.MIMEOctetStream
	}
	return utils.GetMIME(ext)
}

// Len returns the number of indexed files
func (r *Resolver) Len() int {
	return len(r.entries)
}

// Lookup returns the entry stored at exactly the given bundle path
func (r *Resolver) Lookup(p string) (Entry, bool) {
	e, ok := r.entries[p]
	return e, ok
}

// Resolve maps a request path to an entry. Paths missing from the bundle
// resolve to the root document with an HTML content type so client-side
// routes keep working. ErrNoRootDocument is returned only when that fallback
// is missing too.
func (r *Resolver) Resolve(requestPath string) (Entry, error) {
	p := strings.TrimPrefix(requestPath, "/")
	if p == "" {
		p = RootDocument
	}

	if e, ok := r.entries[p]; ok {
		return e, nil
	}

	root, ok := r.entries[RootDocument]
	if !ok {
		return Entry{}, ErrNoRootDocument
	}
	root.ContentType = fiber.MIMETextHTML
	return root, nil
}

// Handler serves Resolve results. It is meant to be mounted after every
// API route.
func (r *Resolver) Handler(c *fiber.Ctx) error {
	e, err := r.Resolve(c.Path())
	if err != nil {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(fiber.StatusNotFound).SendString("404 Not Found")
	}

	c.Set(fiber.HeaderContentType, e.ContentType)
	return c.Status(fiber.StatusOK).Send(e.Data)
}
