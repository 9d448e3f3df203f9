package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"datacat/internal/domain"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect controlled vocabularies",
	}
	cmd.AddCommand(newVocabShowCmd())
	return cmd
}

func newVocabShowCmd() *cobra.Command {
	var (
		name       string
		domainName string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a vocabulary's items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			var voc *domain.Vocabulary
			if domainName != "" {
				dom, err := a.domains.GetByName(ctx, domainName, nil)
				if err != nil {
					return err
				}
				voc, err = a.vocabs.GetByDomainAndName(ctx, dom.ID, name)
				if err != nil {
					return err
				}
			} else {
				// Bare-name lookup fails when the name is ambiguous
				// across domains; narrow with --domain.
				voc, err = a.vocabs.GetByName(ctx, name)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d items)\n", voc.Name, len(voc.Items))
			if voc.Description != "" {
				fmt.Fprintln(out, voc.Description)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VALUE\tCODE\tDESCRIPTION")
			for _, item := range voc.Items {
				fmt.Fprintf(w, "%d\t%s\t%s\n", item.Value, item.Code, item.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "vocabulary name")
	cmd.Flags().StringVar(&domainName, "domain", "", "domain to disambiguate the name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
