// Package manifest builds and renders the asset manifest consumed by the
// static site, and drives a full generation pass from scan to write.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"

	"github.com/hupe1980/assetmanifest/internal/naming"
)

// Header is the first line of every rendered manifest.
const Header = "// Auto-generated file. DO NOT edit by hand.\n"

// DefaultVariable is the global the manifest is assigned to.
const DefaultVariable = "window.ASSETS_MANIFEST"

// ErrInvalidVariable is returned when the target variable is not a dotted
// JavaScript identifier path.
var ErrInvalidVariable = errors.New("invalid variable name")

// variablePattern accepts identifiers and dotted member paths such as
// "window.ASSETS_MANIFEST".
var variablePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// Asset is one image entry of the manifest.
type Asset struct {
	// File is the path relative to the assets root, with forward slashes.
	File string `json:"file"`

	// Name is the display label derived from the file name.
	Name string `json:"name"`
}

// Manifest is the ordered list of assets, in scan order.
type Manifest []Asset

// Build turns root-relative slash paths into a Manifest, keeping their order.
func Build(files []string) Manifest {
	m := make(Manifest, 0, len(files))

	for _, f := range files {
		m = append(m, Asset{
			File: f,
			Name: naming.DisplayName(naming.StripExt(path.Base(f))),
		})
	}

	return m
}

// RenderOptions configures Render.
type RenderOptions struct {
	// Variable is the assignment target. Empty means DefaultVariable.
	Variable string
}

// Render produces the script that assigns m to the configured global. The
// JSON uses two-space indentation and leaves HTML characters unescaped, so
// the output is stable across runs for the same manifest.
func Render(m Manifest, opts RenderOptions) ([]byte, error) {
	variable := opts.Variable
	if variable == "" {
		variable = DefaultVariable
	}

	if !variablePattern.MatchString(variable) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariable, variable)
	}

	if m == nil {
		m = Manifest{}
	}

	var body bytes.Buffer

	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(Header) + len(variable) + body.Len() + 8)
	buf.WriteString(Header)
	buf.WriteString(variable)
	buf.WriteString(" = ")
	buf.Write(unescapeLineSeparators(bytes.TrimRight(body.Bytes(), "\n")))
	buf.WriteString(";\n")

	return buf.Bytes(), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes that
// encoding/json always emits back into raw characters. Escaped backslashes
// are skipped so a literal `\\u2028` in a name is preserved.
func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}

	out := make([]byte, 0, len(b))

	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}

		if b[i+1] == 'u' && i+6 <= len(b) {
			switch string(b[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5

				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5

				continue
			}
		}

		out = append(out, b[i], b[i+1])
		i++
	}

	return out
}
