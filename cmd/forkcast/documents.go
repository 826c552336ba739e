package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"forkcast/api/internal/comparison"
	"forkcast/api/internal/eips"
	"forkcast/api/internal/export"
	"forkcast/api/internal/loader"
	"forkcast/api/internal/render"
)

// parseFile loads a comparison from path, or stdin when path is "-".
func (c *cli) parseFile(cmd *cobra.Command, path string) (*loader.Result, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	ds, err := c.dataset()
	if err != nil {
		return nil, err
	}
	res, err := loader.New(nil, nil, ds).Parse(data)
	if err != nil {
		return nil, userError(err)
	}
	return res, nil
}

func (c *cli) exporter() (*export.Service, error) {
	ds, err := c.dataset()
	if err != nil {
		return nil, err
	}
	return export.NewService(render.New(ds), export.WithLogger(c.log)), nil
}

// writeOutput writes data to out, or to the command's stdout when out is
// empty or "-".
func writeOutput(cmd *cobra.Command, out string, data []byte) error {
	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

func newRenderCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a comparison document to a standalone HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			exp, err := c.exporter()
			if err != nil {
				return err
			}
			page, err := exp.HTML(res.Comparison)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, []byte(page))
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a file is a well-formed comparison document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "OK: %s\n", describe(res.Comparison))
			for _, m := range res.Missing {
				fmt.Fprintf(w, "warning: section %d: no reference data for EIP-%d\n", m.Section+1, m.EIP)
			}
			return nil
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a comparison document as HTML, PDF or DOCX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			res, err := c.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			exp, err := c.exporter()
			if err != nil {
				return err
			}
			result, err := exp.Export(cmd.Context(), res.Comparison, f)
			if err != nil {
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if err := writeOutput(cmd, out, result.Data); err != nil {
				return err
			}
			if out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(result.Data))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "html", "html, pdf or docx")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default derived from the title, - for stdout)")
	return cmd
}

func newGistCmd(c *cli) *cobra.Command {
	var (
		html bool
		out  string
	)
	cmd := &cobra.Command{
		Use:   "gist <id>",
		Short: "Load a comparison from a GitHub Gist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if !loader.ValidGistID(id) {
				return fmt.Errorf("%q is not a Gist id", id)
			}
			ds, err := c.dataset()
			if err != nil {
				return err
			}
			gists := loader.NewGitHubGists(c.cfg.GitHubAPI, c.cfg.GitHubToken, nil)
			res, err := loader.New(gists, nil, ds, loader.WithLogger(c.log)).LoadGist(cmd.Context(), id, true)
			if err != nil {
				return userError(err)
			}

			if html {
				exp, err := c.exporter()
				if err != nil {
					return err
				}
				page, err := exp.HTML(res.Comparison)
				if err != nil {
					return err
				}
				return writeOutput(cmd, out, []byte(page))
			}
			data, err := comparison.MarshalIndent(res.Comparison)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, data)
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "render the document instead of printing its JSON")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func describe(c *comparison.Comparison) string {
	title := c.Meta.Title
	if title == "" {
		title = "(untitled)"
	}
	labels := make([]string, len(c.EIPs))
	for i, id := range c.EIPs {
		labels[i] = eips.Label(id)
	}
	return fmt.Sprintf("%s [%s], %d sections", title, strings.Join(labels, ", "), len(c.Sections))
}

// userError swaps loader errors for the message shown to readers.
func userError(err error) error {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return errors.New(um.UserMessage())
	}
	return err
}
