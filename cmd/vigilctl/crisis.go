package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/vigil/internal/crisis"
)

type crisisCheck struct {
	URL       string `json:"url"`
	Protected bool   `json:"protected"`
	Host      string `json:"host,omitempty"`
	Name      string `json:"name,omitempty"`
}

func newCrisisCommand(opts *rootOptions) *cobra.Command {
	var extra []string

	cmd := &cobra.Command{
		Use:   "crisis",
		Short: "Inspect the protected crisis resource list",
	}
	cmd.PersistentFlags().StringSliceVar(&extra, "domain", nil, "additional protected host (repeatable)")

	cmd.AddCommand(&cobra.Command{
		Use:   "check <url>",
		Short: "Report whether a URL bypasses concern detection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := crisis.New(extra...)
			if err != nil {
				return err
			}

			result := crisisCheck{URL: args[0]}
			if domain, ok := d.Match(args[0]); ok {
				result.Protected = true
				result.Host = domain.Host
				result.Name = domain.Name
			}

			return opts.write(cmd.OutOrStdout(), result, func(w io.Writer) {
				if !result.Protected {
					fmt.Fprintf(w, "%s: not protected\n", result.URL)
					return
				}
				fmt.Fprintf(w, "%s: protected (%s %s)\n", result.URL, result.Host, result.Name)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List protected hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := crisis.New(extra...)
			if err != nil {
				return err
			}

			domains := d.Domains()
			return opts.write(cmd.OutOrStdout(), domains, func(w io.Writer) {
				for _, domain := range domains {
					fmt.Fprintf(w, "%s\t%s\n", domain.Host, domain.Name)
				}
			})
		},
	})

	return cmd
}
