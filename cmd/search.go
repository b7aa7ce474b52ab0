package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	searchKeywords []string
	searchPreview  int
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Retrieve and rank web content without calling a model",
	Long: "search runs only the retrieval pipeline: every argument is a search query, pages are " +
		"extracted within the token budget and printed by keyword score. No completion provider " +
		"is contacted, so the providers section of the config may be left out.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&searchKeywords, "keyword", "k", nil, "keywords used to rank the results (repeatable)")
	searchCmd.Flags().IntVar(&searchPreview, "preview", 24, "tokens of extracted text to show per result (0 hides the column)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadRetrievalConfig()
	if err != nil {
		return err
	}

	agg, tokens, err := newAggregator(cfg)
	if err != nil {
		return err
	}

	items := agg.GetContent(cmd.Context(), args, searchKeywords)
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no content retrieved")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if searchPreview > 0 {
		fmt.Fprintln(w, "SCORE\tTOKENS\tURL\tTITLE\tPREVIEW")
	} else {
		fmt.Fprintln(w, "SCORE\tTOKENS\tURL\tTITLE")
	}
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s", item.KeywordScore, tokens.Count(item.Body), item.URL, item.Title)
		if searchPreview > 0 {
			preview := strings.Join(strings.Fields(tokens.Truncate(item.Body, searchPreview)), " ")
			fmt.Fprintf(w, "\t%s", preview)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
