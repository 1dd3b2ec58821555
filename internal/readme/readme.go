// Package readme turns the Python examples of a README into a pytest file so
// documentation that stops working fails the test run.
package readme

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"pycicd/internal/logging"
	"pycicd/internal/paths"
)

// GeneratedPrefix starts the name of every generated test file.
const GeneratedPrefix = "test_readme_generated"

// Directives recognised in an HTML comment directly above a code block.
const (
	DirectiveSetup = "<!--phmdoctest-setup-->"
	DirectiveSkip  = "<!--phmdoctest-mark.skip-->"
)

// Block is one Python example from the README.
type Block struct {
	// Line is the 1-based line of the opening fence.
	Line int
	Code string

	// Setup blocks run once at module level instead of becoming a test.
	Setup bool
	Skip  bool

	// Expected is the content of an unlabeled fence directly after the
	// block, compared against captured stdout.
	Expected   string
	ExpectLine int
}

// FileName returns the generated test file name for a README modified at mtime seconds.
func FileName(mtime int64) string {
	return fmt.Sprintf("%s-%d.py", GeneratedPrefix, mtime)
}

// AddReadmeTests writes a pytest file built from readmePath into testsDir.
// The name embeds the README modification time, so an unchanged README is
// a no-op. Otherwise every earlier generated file is removed first.
func AddReadmeTests(readmePath, testsDir string) (string, bool, error) {
	if err := paths.ValidatePath(readmePath, "paths.readme"); err != nil {
		return "", false, err
	}
	if err := paths.ValidatePath(testsDir, "paths.tests"); err != nil {
		return "", false, err
	}

	info, err := os.Stat(readmePath)
	if err != nil {
		return "", false, fmt.Errorf("failed to stat README: %w", err)
	}
	target := filepath.Join(testsDir, FileName(info.ModTime().Unix()))

	if _, err := os.Stat(target); err == nil {
		logging.ReadmeDebug("README unchanged, keeping %s", filepath.Base(target))
		return target, false, nil
	}

	if err := removeGenerated(testsDir); err != nil {
		return "", false, err
	}

	source, err := os.ReadFile(readmePath)
	if err != nil {
		return "", false, fmt.Errorf("failed to read README: %w", err)
	}

	blocks := ExtractBlocks(source)
	content := Render(filepath.ToSlash(readmePath), blocks)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write README tests: %w", err)
	}

	logging.Readme("Generated %s with %d blocks", filepath.Base(target), len(blocks))
	return target, true, nil
}

func removeGenerated(testsDir string) error {
	entries, err := os.ReadDir(testsDir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", testsDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), GeneratedPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(testsDir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove stale README tests: %w", err)
		}
		logging.ReadmeDebug("Removed stale %s", e.Name())
	}
	return nil
}

// ExtractBlocks collects the python fenced code blocks of a markdown document.
func ExtractBlocks(source []byte) []Block {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []Block
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok || !isPython(string(fenced.Language(source))) {
			continue
		}

		b := Block{
			Line: fenceLine(source, fenced),
			Code: blockText(source, fenced),
		}
		for _, d := range directives(source, node) {
			switch d {
			case DirectiveSetup:
				b.Setup = true
			case DirectiveSkip:
				b.Skip = true
			}
		}

		if next, ok := node.NextSibling().(*ast.FencedCodeBlock); ok && next.Info == nil && !b.Setup {
			b.Expected = blockText(source, next)
			b.ExpectLine = fenceLine(source, next)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func isPython(lang string) bool {
	switch strings.ToLower(lang) {
	case "python", "py", "python3":
		return true
	}
	return false
}

// directives returns the phmdoctest comments in the HTML blocks directly above node.
func directives(source []byte, node ast.Node) []string {
	var out []string
	for prev := node.PreviousSibling(); prev != nil; prev = prev.PreviousSibling() {
		html, ok := prev.(*ast.HTMLBlock)
		if !ok {
			break
		}
		for _, field := range strings.Fields(blockText(source, html)) {
			if strings.HasPrefix(field, "<!--phmdoctest") {
				out = append(out, field)
			}
		}
	}
	return out
}

func blockText(source []byte, node ast.Node) string {
	var buf bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return buf.String()
}

// fenceLine returns the 1-based line of the opening fence.
func fenceLine(source []byte, node *ast.FencedCodeBlock) int {
	var offset int
	switch {
	case node.Info != nil:
		offset = node.Info.Segment.Start
	case node.Lines().Len() > 0:
		// content starts on the line after the fence
		return bytes.Count(source[:node.Lines().At(0).Start], []byte("\n"))
	default:
		return 0
	}
	return bytes.Count(source[:offset], []byte("\n")) + 1
}

// Render builds the pytest module for blocks.
func Render(readmePath string, blocks []Block) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\"\"\"pytest file built from %s\"\"\"\n", readmePath)
	sb.WriteString("import pytest\n")

	for _, b := range blocks {
		if b.Setup {
			sb.WriteString("\n")
			sb.WriteString(strings.TrimRight(b.Code, "\n"))
			sb.WriteString("\n")
		}
	}

	for _, b := range blocks {
		if b.Setup {
			continue
		}
		sb.WriteString("\n\n")
		if b.Skip {
			sb.WriteString("@pytest.mark.skip()\n")
		}
		if b.ExpectLine > 0 {
			fmt.Fprintf(&sb, "def test_code_%d_output_%d(capsys):\n", b.Line, b.ExpectLine)
		} else {
			fmt.Fprintf(&sb, "def test_code_%d():\n", b.Line)
		}

		body := indent(b.Code)
		if body == "" {
			body = "    pass\n"
		}
		sb.WriteString(body)

		if b.ExpectLine > 0 {
			sb.WriteString("\n    _phm_expected_str = \"\"\"\\\n")
			sb.WriteString(expectedEscaper.Replace(b.Expected))
			sb.WriteString("\"\"\"\n")
			sb.WriteString("    assert capsys.readouterr().out == _phm_expected_str\n")
		}
	}
	return sb.String()
}

// expectedEscaper keeps expected output literal inside a """ string.
var expectedEscaper = strings.NewReplacer(`\`, `\\`, `"""`, `\"\"\"`)

func indent(code string) string {
	code = strings.TrimRight(code, "\n")
	if strings.TrimSpace(code) == "" {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			sb.WriteString("    ")
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
