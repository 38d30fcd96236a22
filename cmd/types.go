package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/mediaout/internal/engine"
	"github.com/smazurov/mediaout/internal/output"
)

// CreateTypesCmd creates the types command.
func CreateTypesCmd() *cobra.Command {
	var asJSON bool
	var locale string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List registered output types",
		Long:  `Prints every built-in output type with the media it consumes and its configurable properties.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			types, err := engine.DefaultTypes()
			if err != nil {
				return err
			}
			manager := output.NewManager(types)
			defer manager.Shutdown()

			if asJSON {
				return printTypesJSON(c, types, manager, locale)
			}

			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, id := range types.IDs() {
				info, _ := types.Lookup(id)
				fmt.Fprintf(w, "%s\t%s\n", id, info.Flags)
				if props := manager.TypeProperties(id, locale); props != nil {
					for _, p := range props.List() {
						fmt.Fprintf(w, "  %s\t%s\t%v\t%s\n", p.Name, p.Type, p.Value, p.Description)
					}
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().StringVar(&locale, "locale", "en-US", "Locale for property descriptions")
	return cmd
}

func printTypesJSON(c *cobra.Command, types *output.Types, manager *output.Manager, locale string) error {
	type typeJSON struct {
		ID         string `json:"id"`
		Flags      string `json:"flags"`
		Properties any    `json:"properties,omitempty"`
	}
	var list []typeJSON
	for _, id := range types.IDs() {
		info, _ := types.Lookup(id)
		t := typeJSON{ID: id, Flags: info.Flags.String()}
		if props := manager.TypeProperties(id, locale); props != nil {
			t.Properties = props.List()
		}
		list = append(list, t)
	}

	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
