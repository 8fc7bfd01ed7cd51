package cli

import (
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ratecard-service/internal/cart"
	"ratecard-service/internal/money"
)

func cartCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the local booking cart",
	}
	cmd.AddCommand(cartAddCmd(rt))
	cmd.AddCommand(cartListCmd(rt))
	cmd.AddCommand(cartRemoveCmd(rt))
	cmd.AddCommand(cartClearCmd(rt))
	cmd.AddCommand(cartCheckoutCmd(rt))
	return cmd
}

func cartAddCmd(rt *runtime) *cobra.Command {
	var (
		qty        int
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "add <table-id> <row-id> <column-id>",
		Short: "Select a cell of a bookable row",
		Args:  exactArgs(3, "ratecardctl cart add <table-id> <row-id> <column-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tableID, rowID, columnID := args[0], args[1], args[2]

			t, err := rt.client().GetTable(ctx, tableID)
			if err != nil {
				return err
			}
			c, done, err := rt.openCart(ctx)
			if err != nil {
				return err
			}
			defer done()

			already := slices.ContainsFunc(c.Items(), func(it cart.Item) bool {
				return it.RowID == rowID && slices.Contains(it.ColumnIDs, columnID)
			})
			if !already {
				if _, err := c.Toggle(ctx, *t, rowID, columnID); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("qty") {
				if err := c.SetQuantity(ctx, rowID, qty); err != nil {
					return err
				}
			}
			if start != "" || end != "" {
				if err := c.SetDates(ctx, rowID, start, end); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cart: %d items, total %s\n", len(c.Items()), money.Format(c.Total()))
			return nil
		},
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "Quantity")
	cmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	return cmd
}

func cartListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cart items",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := rt.openCart(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			items := c.Items()
			if rt.asJSON {
				return writeJSON(out, map[string]any{"items": items, "total": c.Total()})
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Cart is empty.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROW\tTABLE\tITEM\tCELLS\tPRICE\tQTY\tDATES\tSUBTOTAL")
			for _, it := range items {
				dates := it.StartDate
				if it.EndDate != "" {
					dates += ".." + it.EndDate
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					it.RowID, it.TableName, it.Label, strconv.Itoa(len(it.ColumnIDs)),
					money.Format(it.UnitPrice), it.Quantity, dates, money.Format(it.Subtotal()))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTotal: %s\n", money.Format(c.Total()))
			return nil
		},
	}
}

func cartRemoveCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <row-id>",
		Short: "Remove a row from the cart",
		Args:  exactArgs(1, "ratecardctl cart remove <row-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := rt.openCart(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return c.Remove(cmd.Context(), args[0])
		},
	}
}

func cartClearCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := rt.openCart(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return c.Clear(cmd.Context())
		},
	}
}

func cartCheckoutCmd(rt *runtime) *cobra.Command {
	var contact cart.Contact
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Book every row in the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := rt.openCart(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			res, err := c.Checkout(cmd.Context(), rt.client(), contact)
			out := cmd.OutOrStdout()
			if len(res.Booked) > 0 || res.Failed > 0 {
				fmt.Fprintf(out, "%d booked, %d failed\n", len(res.Booked), res.Failed)
				for _, b := range res.Booked {
					fmt.Fprintf(out, "  %s  row %s  qty %d\n", b.ID, b.RowID, b.Quantity)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&contact.Name, "name", "", "Client name")
	cmd.Flags().StringVar(&contact.Email, "email", "", "Client email")
	cmd.Flags().StringVar(&contact.Phone, "phone", "", "Client phone")
	cmd.Flags().StringVar(&contact.Notes, "notes", "", "Notes for the agency")
	return cmd
}
