package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corvusHold/certify/internal/logger"
	"github.com/corvusHold/certify/internal/records"
	"github.com/corvusHold/certify/internal/render"
	tdomain "github.com/corvusHold/certify/internal/templates/domain"
)

// Offline commands: they never call the API.

var validateCSVCmd = &cobra.Command{
	Use:   "validate-csv [file.csv]",
	Short: "Check a CSV file before uploading it",
	Long: `Check a CSV file against a template's placeholders without spending tokens.
Placeholders come from --template (a template JSON file) or --placeholders.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("placeholders")
		if path, _ := cmd.Flags().GetString("template"); path != "" {
			tpl, err := readTemplate(path)
			if err != nil {
				return err
			}
			names = tpl.PlaceholderNames()
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()
		return validateCSV(cmd.OutOrStdout(), f, names)
	},
}

func init() {
	validateCSVCmd.Flags().String("template", "", "template JSON file")
	validateCSVCmd.Flags().StringSlice("placeholders", nil, "placeholder names, comma-separated")
}

func validateCSV(w io.Writer, r io.Reader, placeholders []string) error {
	res, err := records.Validate(r, placeholders)
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"totalRows":      res.TotalRows,
			"validRows":      len(res.ValidRecords),
			"invalidEmails":  res.InvalidEmails,
			"columns":        res.ColumnNames,
			"missingColumns": res.MissingColumns,
		})
	}
	fmt.Fprintf(w, "%-20s: %d\n", "rows", res.TotalRows)
	fmt.Fprintf(w, "%-20s: %d\n", "valid", len(res.ValidRecords))
	fmt.Fprintf(w, "%-20s: %d\n", "invalid emails", len(res.InvalidEmails))
	fmt.Fprintf(w, "%-20s: %s\n", "columns", strings.Join(res.ColumnNames, ", "))
	if !res.HasEmailColumn {
		fmt.Fprintln(w, "warning: no email column; certificates will not be delivered")
	}
	if len(res.MissingColumns) > 0 {
		fmt.Fprintf(w, "%-20s: %s (rendered empty)\n", "missing columns", strings.Join(res.MissingColumns, ", "))
	}
	for _, ie := range res.InvalidEmails {
		fmt.Fprintf(w, "  row %d: %s (%s)\n", ie.Row, ie.Reason, ie.Email)
	}
	return nil
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a local preview of a template",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("template")
		out, _ := cmd.Flags().GetString("out")
		pairs, _ := cmd.Flags().GetStringArray("set")
		baseURL, _ := cmd.Flags().GetString("validation-base-url")
		if path == "" {
			return fmt.Errorf("--template is required")
		}
		tpl, err := readTemplate(path)
		if err != nil {
			return err
		}
		values, err := parsePairs(pairs)
		if err != nil {
			return err
		}

		log := logger.Nop()
		if verbose {
			log = logger.New("development")
		}
		fetcher := render.NewHTTPFetcher(30 * time.Second)
		fonts, err := render.NewFontSource(fetcher, log)
		if err != nil {
			return err
		}
		r := render.New(render.NewFetchLoader(fetcher), fonts, func(uid string) string {
			return strings.TrimRight(baseURL, "/") + "/validate/" + uid
		}, log)

		res, err := r.Render(context.Background(), tpl, records.Record(values), uuid.NewString())
		if err != nil {
			return err
		}
		for _, s := range res.Skipped {
			fmt.Fprintf(os.Stderr, "skipped %s\n", s.Error())
		}
		if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		fmt.Printf("Wrote %dx%d preview to %s\n", res.Width, res.Height, out)
		return nil
	},
}

func init() {
	renderCmd.Flags().String("template", "", "template JSON file")
	renderCmd.Flags().String("out", "preview.png", "output PNG path")
	renderCmd.Flags().StringArray("set", nil, "placeholder value as name=value (repeatable)")
	renderCmd.Flags().String("validation-base-url", "http://localhost:8080", "base URL encoded in QR codes")
}

func readTemplate(path string) (tdomain.Template, error) {
	var tpl tdomain.Template
	b, err := os.ReadFile(path)
	if err != nil {
		return tpl, fmt.Errorf("read template: %w", err)
	}
	if err := json.Unmarshal(b, &tpl); err != nil {
		return tpl, fmt.Errorf("decode template: %w", err)
	}
	if err := tpl.Validate(); err != nil {
		return tpl, fmt.Errorf("invalid template: %w", err)
	}
	return tpl, nil
}
