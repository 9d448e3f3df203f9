package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAssetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Inspect assets, versions, and lineage",
	}
	cmd.AddCommand(newAssetListCmd())
	cmd.AddCommand(newAssetVersionsCmd())
	cmd.AddCommand(newAssetLineageCmd())
	return cmd
}

func newAssetListCmd() *cobra.Command {
	var studyID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a study's assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			assets, err := a.ledger.ListAssets(cmd.Context(), studyID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tID\tDESCRIPTION")
			for _, asset := range assets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", asset.Name, asset.Kind, asset.ID, asset.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&studyID, "study", "", "owning study identifier")
	_ = cmd.MarkFlagRequired("study")
	return cmd
}

func newAssetVersionsCmd() *cobra.Command {
	var (
		studyID   string
		assetName string
	)

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List an asset's versions in version order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			asset, err := a.ledger.GetAsset(ctx, studyID, assetName)
			if err != nil {
				return err
			}
			versions, err := a.ledger.ListVersions(ctx, asset.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tLATEST\tID\tCREATED\tNOTE")
			for _, v := range versions {
				latest := ""
				if v.IsLatest {
					latest = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					v.Version, latest, v.ID, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Note)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&studyID, "study", "", "owning study identifier")
	cmd.Flags().StringVar(&assetName, "asset", "", "asset name within the study")
	_ = cmd.MarkFlagRequired("study")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newAssetLineageCmd() *cobra.Command {
	var versionID string

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show every transformation that consumed or produced a version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			lineages, err := a.transforms.ForVersion(cmd.Context(), versionID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, l := range lineages {
				t := l.Transformation
				fmt.Fprintf(out, "%s  %s  %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"), t.Type, t.Description)
				if t.Source.CommitSHA != "" {
					fmt.Fprintf(out, "    source: %s @ %s\n", t.Source.RepoURL, t.Source.CommitSHA)
				}
				for _, in := range l.InputVersions {
					fmt.Fprintf(out, "    input:  %s\n", in)
				}
				for _, o := range l.OutputVersions {
					fmt.Fprintf(out, "    output: %s\n", o)
				}
			}
			if len(lineages) == 0 {
				fmt.Fprintln(out, "no recorded transformations")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&versionID, "version", "", "asset version ID")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}
