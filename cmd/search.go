package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/gemhub/internal/search"
)

var flagSearchK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search packages by keyword",
	Long: `Search the latest version of every package by keyword. All words must
match the name, summary, description, authors or licenses; name matches rank
first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&flagSearchK, "k", "k", 10, "Number of results to show")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, _, err := openService(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	entries, err := svc.Index().Entries()
	if err != nil {
		return err
	}
	results := search.Keyword(search.Docs(entries), strings.Join(args, " "), flagSearchK)

	p := newPrinter(cmd)
	if len(results) == 0 {
		p.miss("", "no matches")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tMATCH\tSUMMARY")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Doc.Name, r.Doc.Version, r.Why, r.Doc.Summary)
	}
	return tw.Flush()
}
