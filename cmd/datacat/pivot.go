package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"datacat/internal/domain"
	"datacat/internal/gitref"
	"datacat/internal/service/pivot"
)

func newPivotCmd() *cobra.Command {
	var (
		fileVersionID string
		filePath      string
		fileAsset     string
		studyID       string
		assetName     string
		domainName    string
		domainURI     string
		note          string
		desc          string
	)

	cmd := &cobra.Command{
		Use:   "pivot",
		Short: "Pivot an EAV export file into a wide dataset version",
		Long: strings.TrimSpace(`
Pivot reads a registered long-format (record, field_name, value) export
and materializes one wide lake table row per record. The export is given
either as an existing file version ID (--file-version) or as a path
(--file), which is registered as a new file asset first.`),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (fileVersionID == "") == (filePath == "") {
				return domain.ErrValidation("exactly one of --file-version and --file is required")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			if filePath != "" {
				name := fileAsset
				if name == "" {
					name = assetNameFromPath(filePath)
				}
				_, version, err := a.ledger.CreateAsset(ctx, studyID, name,
					domain.KindFile, "EAV export", note)
				if err != nil {
					return err
				}
				if _, err := a.ledger.RegisterFile(ctx, version.ID, filePath); err != nil {
					return err
				}
				fileVersionID = version.ID
			}

			var uri *string
			if domainURI != "" {
				uri = &domainURI
			}
			res, err := a.pivot.Pivot(ctx, pivot.Request{
				FileVersionID: fileVersionID,
				StudyID:       studyID,
				AssetName:     assetName,
				Description:   desc,
				Note:          note,
				DomainName:    domainName,
				DomainURI:     uri,
				Source:        gitref.Resolve("."),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pivoted %d records (%d fields) into %s.%s (version %s)\n",
				res.Records, len(res.Fields), res.Dataset.SchemaName, res.Dataset.TableName, res.Version.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&fileVersionID, "file-version", "", "registered file version ID of the export")
	cmd.Flags().StringVar(&filePath, "file", "", "path to an export to register and pivot")
	cmd.Flags().StringVar(&fileAsset, "file-asset", "", "asset name for a newly registered export (defaults to the file name)")
	cmd.Flags().StringVar(&studyID, "study", "", "owning study identifier")
	cmd.Flags().StringVar(&assetName, "asset", "", "target dataset asset name")
	cmd.Flags().StringVar(&domainName, "domain", "", "domain the pivoted columns resolve against")
	cmd.Flags().StringVar(&domainURI, "domain-uri", "", "optional domain URI")
	cmd.Flags().StringVar(&note, "note", "", "version note")
	cmd.Flags().StringVar(&desc, "description", "", "asset description")
	for _, f := range []string{"study", "asset", "domain"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// assetNameFromPath folds a file path into a valid asset name: the base
// name lowercased, with anything outside [a-z0-9_] replaced by "_".
func assetNameFromPath(path string) string {
	base := strings.ToLower(filepath.Base(path))
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, base)
	if name == "" || name[0] >= '0' && name[0] <= '9' {
		name = "f_" + name
	}
	return name
}
