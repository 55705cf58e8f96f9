package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"validatetest/internal/core/app"
	"validatetest/internal/core/ports"
	"validatetest/internal/engine/grammar"
	"validatetest/internal/engine/highlight"
	"validatetest/internal/shared/util"
)

// open parses in through the service. Standard input has no extension, so it
// is parsed as lang.
func (c *cli) open(ctx context.Context, in input, lang string) (*ports.Document, error) {
	if in.path == stdinPath || lang != "" {
		if lang == "" {
			lang = grammar.ValidateTestName
		}
		return c.svc.OpenAs(ctx, in.path, lang, in.text)
	}
	return c.svc.Open(ctx, in.path, in.text)
}

func displayName(path string) string {
	if path == stdinPath {
		return "<stdin>"
	}
	return path
}

func newParseCmd(c *cli) *cobra.Command {
	var format, lang string
	cmd := &cobra.Command{
		Use:   "parse [files...]",
		Short: "Print the syntax tree of each file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ports.ParseExportFormat(format)
			if err != nil {
				return err
			}
			inputs, err := c.readInputs(args)
			if err != nil {
				return err
			}
			for _, in := range inputs {
				if _, err := c.open(cmd.Context(), in, lang); err != nil {
					return err
				}
				out, err := c.svc.Export(cmd.Context(), in.path, f)
				if err != nil {
					return err
				}
				if len(inputs) > 1 {
					fmt.Fprintf(c.stdout, "==> %s <==\n", displayName(in.path))
				}
				c.stdout.Write(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(ports.ExportSExpr), "output format: sexp, json or yaml")
	cmd.Flags().StringVarP(&lang, "language", "l", "", "parse as this language instead of the one owning the extension")
	return cmd
}

func newCheckCmd(c *cli) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Report syntax errors",
		Long:  "Report syntax errors as path:line:col: message. Exits 1 when any file has errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := c.readInputs(args)
			if err != nil {
				return err
			}
			failed := 0
			for _, in := range inputs {
				doc, err := c.open(cmd.Context(), in, lang)
				if err != nil {
					return err
				}
				if len(doc.Diagnostics) > 0 {
					failed++
				}
				printDiagnostics(c, displayName(in.path), doc)
			}
			c.logger.Debug("check finished", "files", len(inputs), "failed", failed)
			if failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "", "parse as this language")
	return cmd
}

func printDiagnostics(c *cli, name string, doc *ports.Document) {
	for _, d := range doc.Diagnostics {
		fmt.Fprintf(c.stdout, "%s:%s: %s\n", name, d.Pos, d.Message)
	}
}

func newHighlightCmd(c *cli) *cobra.Command {
	var lang string
	var spans bool
	cmd := &cobra.Command{
		Use:   "highlight [files...]",
		Short: "Print files with syntax highlighting",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := c.readInputs(args)
			if err != nil {
				return err
			}
			theme := highlight.DefaultTheme(lipgloss.NewRenderer(c.stdout))
			for _, in := range inputs {
				doc, err := c.open(cmd.Context(), in, lang)
				if err != nil {
					return err
				}
				result, err := c.svc.Highlight(cmd.Context(), in.path)
				if err != nil {
					return err
				}
				if !spans {
					fmt.Fprint(c.stdout, highlight.Render(doc.Text(), result, theme))
					continue
				}
				for _, s := range result {
					fmt.Fprintf(c.stdout, "%s\t%d-%d\t%s\t%s\t%d\t%q\n",
						displayName(in.path), s.Start, s.End, s.Capture, s.Language, s.Depth, doc.Text()[s.Start:s.End])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "", "highlight as this language")
	cmd.Flags().BoolVar(&spans, "spans", false, "print the highlight spans instead of styled text")
	return cmd
}

func newQueryCmd(c *cli) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "query <query.scm> [files...]",
		Short: "Run a tree query and print its captures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			inputs, err := c.readInputs(args[1:])
			if err != nil {
				return err
			}
			for _, in := range inputs {
				doc, err := c.open(cmd.Context(), in, lang)
				if err != nil {
					return err
				}
				captures, err := c.svc.Query(cmd.Context(), in.path, string(src))
				if err != nil {
					return err
				}
				for _, capture := range captures {
					pos := doc.Tree.StartPosition(capture.Node)
					fmt.Fprintf(c.stdout, "%s:%s: pattern %d @%s %q\n",
						displayName(in.path), pos, capture.PatternIndex, capture.Name, doc.Text()[capture.Start:capture.End])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "", "parse as this language")
	return cmd
}

func newFmtCmd(c *cli) *cobra.Command {
	var inPlace, check, diff bool
	var indent, lineLength int
	cmd := &cobra.Command{
		Use:   "fmt [files...]",
		Short: "Format validatetest files",
		Long: `Format validatetest files.

Without flags the formatted text is printed. --check lists files that
would change and exits 1 if there are any; --diff prints a unified diff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.cfg.FormatOptions()
			if cmd.Flags().Changed("indent") {
				opts.IndentWidth = indent
			}
			if cmd.Flags().Changed("line-length") {
				opts.MaxLineLength = lineLength
			}
			c.svc.SetFormatOptions(opts)

			inputs, err := c.readInputs(args)
			if err != nil {
				return err
			}
			changed := 0
			for _, in := range inputs {
				if _, err := c.open(cmd.Context(), in, ""); err != nil {
					return err
				}
				out, err := c.svc.Format(cmd.Context(), in.path)
				if err != nil {
					return fmt.Errorf("%s: %w", displayName(in.path), err)
				}
				if out != string(in.text) {
					changed++
				}
				switch {
				case check:
					if out != string(in.text) {
						fmt.Fprintln(c.stdout, displayName(in.path))
					}
				case diff:
					fmt.Fprint(c.stdout, app.UnifiedDiff(displayName(in.path), string(in.text), out))
				case inPlace && in.path != stdinPath:
					if out == string(in.text) {
						continue
					}
					if err := writeFile(in, out); err != nil {
						return err
					}
					c.logger.Info("formatted", "path", in.path)
				default:
					fmt.Fprint(c.stdout, out)
				}
			}
			if check && changed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "rewrite files in place")
	cmd.Flags().BoolVarP(&check, "check", "c", false, "list files that are not formatted")
	cmd.Flags().BoolVar(&diff, "diff", false, "print a unified diff instead of the formatted text")
	cmd.Flags().IntVar(&indent, "indent", 0, "indent width (overrides the config)")
	cmd.Flags().IntVar(&lineLength, "line-length", 0, "maximum line length (overrides the config)")
	cmd.MarkFlagsMutuallyExclusive("in-place", "check", "diff")
	return cmd
}

func writeFile(in input, text string) error {
	mode := in.mode
	if mode == 0 {
		mode = 0o644
	}
	if err := util.WriteFileAtomic(in.path, []byte(text), mode); err != nil {
		return fmt.Errorf("write %s: %w", in.path, err)
	}
	return nil
}
