// Package sink owns the lifecycle of supplier output documents: create the
// file, write the encoded text, then rewrite it in canonical form.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Failure kinds of the document lifecycle, matched with errors.Is.
var (
	ErrIO     = errors.New("output io")
	ErrParse  = errors.New("output parse")
	ErrFormat = errors.New("output format")
)

// canonicalDeclaration is written on every canonicalized document.
const canonicalDeclaration = `version="1.0" encoding="UTF-8" standalone="yes"`

const extension = ".xml"

// Sink writes supplier documents into one output directory.
type Sink struct {
	outputDir string
	log       *zap.Logger
	indent    etree.IndentSettings
}

// New returns a Sink for outputDir. The directory is created on first use.
func New(outputDir string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		outputDir: outputDir,
		log:       log.Named("sink"),
		indent:    etree.IndentSettings{Spaces: 4, UseCRLF: true, PreserveLeafWhitespace: true},
	}
}

// Dir returns the output directory.
func (s *Sink) Dir() string { return s.outputDir }

// CreateDocument ensures {outputDir}/{name}.xml exists and returns its
// absolute path. Existing content is left untouched.
func (s *Sink) CreateDocument(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid document name %q", ErrIO, name)
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir: %w", ErrIO, err)
	}
	path, err := filepath.Abs(filepath.Join(s.outputDir, name+extension))
	if err != nil {
		return "", fmt.Errorf("%w: abs: %w", ErrIO, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create: %w", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return path, nil
}

// WriteRaw replaces the whole content of path with text.
func (s *Sink) WriteRaw(path, text string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open: %w", ErrIO, err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("%w: write: %w", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return nil
}

// Canonicalize rewrites the document at path with a standalone declaration,
// four space indentation and CRLF line endings. Running it twice leaves the
// file unchanged.
func (s *Sink) Canonicalize(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read: %w", ErrIO, err)
	}
	doc := etree.NewDocument()
	// CR in values is kept as a character reference so a reader gets it back.
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrParse, filepath.Base(path), err)
	}
	if doc.Root() == nil {
		return fmt.Errorf("%w: %s: no root element", ErrParse, filepath.Base(path))
	}
	setDeclaration(doc)

	indent := s.indent
	doc.IndentWithSettings(&indent)
	out, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("%w: write: %w", ErrIO, err)
	}
	s.log.Debug("document canonicalized", zap.String("path", path), zap.Int("bytes", len(out)))
	return nil
}

// Emit runs create, write and canonicalize for one document and returns the
// path written.
func (s *Sink) Emit(name, text string) (string, error) {
	path, err := s.CreateDocument(name)
	if err != nil {
		return "", err
	}
	if err := s.WriteRaw(path, text); err != nil {
		return path, err
	}
	if err := s.Canonicalize(path); err != nil {
		return path, err
	}
	return path, nil
}

// setDeclaration replaces the xml declaration, or inserts one when the
// document has none.
func setDeclaration(doc *etree.Document) {
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			pi.Inst = canonicalDeclaration
			return
		}
	}
	doc.InsertChildAt(0, etree.NewProcInst("xml", canonicalDeclaration))
}
