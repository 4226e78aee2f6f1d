package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/contact-scraper/internal/extract"
	"github.com/sells-group/contact-scraper/internal/model"
	"github.com/sells-group/contact-scraper/internal/pipeline"
	"github.com/sells-group/contact-scraper/internal/scrape"
)

var (
	extractURL     string
	extractCompany string
)

// staticResolver skips search and hands the pipeline a known website.
type staticResolver struct {
	url string
}

func (s staticResolver) Resolve(_ context.Context, _ model.CompanyRecord) (*model.SearchCandidate, error) {
	u, err := scrape.NormalizeURL(s.url)
	if err != nil {
		return nil, err
	}
	return &model.SearchCandidate{
		URL:      u,
		FetchURL: u,
		Domain:   scrape.RegistrableDomain(u),
		Provider: "manual",
		Rank:     1,
	}, nil
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Fetch one website and print the contacts found on it",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initScraper(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		name := extractCompany
		if name == "" {
			name = scrape.Host(extractURL)
		}

		var opts []pipeline.Option
		opts = append(opts, pipeline.WithBlockRecorder(env.Pacer))
		if cfg.Extract.VerifyMX {
			opts = append(opts, pipeline.WithEmailVerifier(extract.NewMXVerifier(cfg.Extract.DNSServers, 0)))
		}
		p := pipeline.New(staticResolver{url: extractURL}, env.Sites, extract.Options{
			MinPhoneDigits: cfg.Extract.MinPhoneDigits,
			MaxPhoneDigits: cfg.Extract.MaxPhoneDigits,
		}, opts...)

		res := p.ProcessCompany(cmd.Context(), model.CompanyRecord{Row: 1, Name: name})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractURL, "url", "", "website URL (required)")
	extractCmd.Flags().StringVar(&extractCompany, "company", "", "company name for the output row (default: host)")
	_ = extractCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(extractCmd)
}
