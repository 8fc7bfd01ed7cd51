package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ratecard-service/internal/editor"
	"ratecard-service/internal/ratecard"
)

func tableCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect and edit rate-card tables",
	}
	cmd.AddCommand(tableShowCmd(rt))
	cmd.AddCommand(tableSetCmd(rt))
	return cmd
}

func cellText(col ratecard.Column, value string) string {
	d, err := ratecard.Render(col, value)
	if err != nil {
		return value
	}
	if d.Badge != nil {
		return fmt.Sprintf("[%s]", d.Badge.Label)
	}
	return d.Text
}

func tableShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <table-id>",
		Short: "Print a table with typed cell values",
		Args:  exactArgs(1, "ratecardctl table show <table-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := rt.client().GetTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rt.asJSON {
				return writeJSON(out, t)
			}

			fmt.Fprintf(out, "%s (%s)\n", t.Name, t.ID)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			header := []string{"ROW"}
			for _, c := range t.Columns {
				header = append(header, fmt.Sprintf("%s [%s]", strings.ToUpper(c.Name), c.ID))
			}
			header = append(header, "BOOKABLE")
			fmt.Fprintln(w, strings.Join(header, "\t"))
			for _, r := range t.Rows {
				line := []string{r.ID}
				for _, c := range t.Columns {
					line = append(line, cellText(c, r.Value(c.ID)))
				}
				bookable := "no"
				if r.IsBookable {
					bookable = "yes"
				}
				line = append(line, bookable)
				fmt.Fprintln(w, strings.Join(line, "\t"))
			}
			return w.Flush()
		},
	}
}

func tableSetCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "set <table-id> <row-id> <column-id> <value>",
		Short: "Save one cell through the optimistic editor",
		Args:  exactArgs(4, "ratecardctl table set <table-id> <row-id> <column-id> <value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			tableID, rowID, columnID, value := args[0], args[1], args[2], args[3]

			var failed []string
			notify := editor.NotifierFunc(func(t editor.Toast) {
				if t.Level == editor.LevelError {
					failed = append(failed, t.Message)
				}
			})
			ed := editor.New(rt.client(), tableID, notify, nil)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() { _ = ed.Run(ctx) }()

			if err := ed.Load(ctx); err != nil {
				return err
			}
			if err := ed.BeginEdit(rowID, columnID); err != nil {
				return err
			}
			if err := ed.SetDraft(rowID, columnID, value); err != nil {
				return err
			}
			if err := ed.Commit(ctx, rowID, columnID, editor.Enter); err != nil {
				return err
			}
			if err := ed.Settle(ctx); err != nil {
				return err
			}
			if len(failed) > 0 {
				return errors.New(strings.Join(failed, "; "))
			}

			d, err := ed.Display(rowID, columnID)
			if err != nil {
				return err
			}
			if rt.asJSON {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			text := d.Text
			if d.Badge != nil {
				text = fmt.Sprintf("[%s] (%s)", d.Badge.Label, d.Badge.Color)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s-%s: %s\n", rowID, columnID, text)
			return nil
		},
	}
}
