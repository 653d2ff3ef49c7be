package cli

import (
	"fmt"

	"github.com/ashureev/strategic-discovery/internal/client"
	"github.com/ashureev/strategic-discovery/internal/taxonomy"
	"github.com/spf13/cobra"
)

func TaxonomyCmd() *cobra.Command {
	var server, file string
	cmd := &cobra.Command{
		Use:   "taxonomy [industry [sub-industry]]",
		Short: "List industries, sub-industries or niches",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				names []string
				err   error
			)
			if server != "" {
				c, cerr := client.New(server)
				if cerr != nil {
					return cerr
				}
				names, err = c.Taxonomy(cmd.Context(), args...)
			} else {
				names, err = listLocal(file, args)
			}
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Query a running server instead of the local taxonomy")
	cmd.Flags().StringVar(&file, "file", "", "Taxonomy file (default: built-in)")
	cmd.AddCommand(taxonomyValidateCmd())
	return cmd
}

func listLocal(file string, args []string) ([]string, error) {
	tree, err := loadTree(file)
	if err != nil {
		return nil, err
	}
	switch len(args) {
	case 0:
		return tree.Industries(), nil
	case 1:
		subs, ok := tree.SubIndustries(args[0])
		if !ok {
			return nil, fmt.Errorf("unknown industry %q", args[0])
		}
		return subs, nil
	default:
		niches, ok := tree.Niches(args[0], args[1])
		if !ok {
			return nil, fmt.Errorf("unknown sub-industry %q > %q", args[0], args[1])
		}
		return niches, nil
	}
}

func taxonomyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a taxonomy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := taxonomy.LoadFile(args[0])
			if err != nil {
				return err
			}
			subs, niches := 0, 0
			for _, ind := range tree.Industries() {
				ss, _ := tree.SubIndustries(ind)
				subs += len(ss)
				for _, s := range ss {
					nn, _ := tree.Niches(ind, s)
					niches += len(nn)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d industries, %d sub-industries, %d niches\n",
				len(tree.Industries()), subs, niches)
			return nil
		},
	}
}
