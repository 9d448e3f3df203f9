package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"datacat/internal/domain"
	"datacat/internal/gitref"
	"datacat/internal/service/ingest"
	"datacat/internal/source"
)

func newIngestCmd() *cobra.Command {
	var (
		sourceName string
		studyID    string
		assetName  string
		domainName string
		domainURI  string
		query      string
		note       string
		desc       string
		replace    bool
		version    versionFlag
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a source query into a new dataset version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			src, ok := a.cfg.Source(sourceName)
			if !ok {
				return domain.ErrValidation("source %q is not configured (SOURCE_%s_FLAVOUR / _DSN)", sourceName, sourceName)
			}
			flavour, err := source.ParseFlavour(src.Flavour)
			if err != nil {
				return err
			}
			conn, err := source.Open(ctx, flavour, src.DSN)
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			probe, err := source.ForFlavour(flavour, conn)
			if err != nil {
				return err
			}

			var uri *string
			if domainURI != "" {
				uri = &domainURI
			}
			res, err := a.ingest.Ingest(ctx, probe, ingest.Request{
				StudyID:     studyID,
				AssetName:   assetName,
				Description: desc,
				Note:        note,
				DomainName:  domainName,
				DomainURI:   uri,
				Query:       query,
				Replace:     replace,
				Version:     version.version,
				Source:      gitref.Resolve("."),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d rows into %s.%s (version %s)\n",
				res.Rows, res.Dataset.SchemaName, res.Dataset.TableName, res.Version.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "configured source name")
	cmd.Flags().StringVar(&studyID, "study", "", "owning study identifier")
	cmd.Flags().StringVar(&assetName, "asset", "", "asset name within the study")
	cmd.Flags().StringVar(&domainName, "domain", "", "domain scoping variables and vocabularies")
	cmd.Flags().StringVar(&domainURI, "domain-uri", "", "optional domain URI")
	cmd.Flags().StringVar(&query, "query", "", "source query to ingest")
	cmd.Flags().StringVar(&note, "note", "", "version note")
	cmd.Flags().StringVar(&desc, "description", "", "asset description")
	cmd.Flags().BoolVar(&replace, "replace", false, "version an existing asset instead of creating one")
	cmd.Flags().Var(&version, "version", "explicit version triple for --replace (default: patch bump)")
	for _, f := range []string{"source", "study", "asset", "domain", "query"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
