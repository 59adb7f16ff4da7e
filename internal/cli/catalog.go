package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/avvvet/council-intake/internal/catalog"
	"github.com/spf13/cobra"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and print the service catalog",
	Long: `Load a catalog file (or the built-in default) with the same validation the
service applies at startup, and print each service with its fields in the order
they are asked.`,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().StringVarP(&catalogFile, "file", "f", envOr("CATALOG_FILE", ""), "catalog YAML file (built-in default when empty)")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return err
	}
	printCatalog(cmd.OutOrStdout(), cat)
	return nil
}

func printCatalog(out io.Writer, cat *catalog.Catalog) {
	for i, svc := range cat.List() {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s  %s  [%s, %s]\n", svc.ID, svc.Name, svc.Category, svc.Priority)
		for n, f := range svc.Fields {
			required := "optional"
			if f.Required {
				required = "required"
			}
			fmt.Fprintf(out, "  %d. %-20s %-12s %s", n+1, f.ID, f.Type, required)
			if len(f.Options) > 0 {
				fmt.Fprintf(out, "  {%s}", strings.Join(f.Options, " | "))
			}
			fmt.Fprintln(out)
		}
	}
}
