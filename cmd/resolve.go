package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/contact-scraper/internal/model"
)

var resolveCountry string

var resolveCmd = &cobra.Command{
	Use:   "resolve <company>",
	Short: "Resolve a company's website without scraping it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initScraper(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		rec := model.CompanyRecord{Row: 1, Name: strings.Join(args, " "), Country: resolveCountry}
		cand, err := env.Resolver.Resolve(cmd.Context(), rec)
		if err != nil {
			return err
		}
		if cand == nil {
			fmt.Fprintln(os.Stdout, model.NotFoundWebsite)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cand)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCountry, "country", "", "country used to refine the search")
	rootCmd.AddCommand(resolveCmd)
}
