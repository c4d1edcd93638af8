package main

import (
	"github.com/spf13/cobra"

	"github.com/esgari/balance360/cmd/balance360/cli"
	"github.com/esgari/balance360/internal/balance/profile"
)

func newConsolidateCmd(st *rootState) *cobra.Command {
	var entities []string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Build the consolidated statement once",
		Long: `Loads the mapping, ledger and optional manual workbooks, consolidates
every entity and prints the totals. Exits with status 10 when the
statement does not balance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.ConsolidateOptions{
				Mapping:      st.v.GetString("mapping"),
				MappingSheet: st.v.GetString("mapping_sheet"),
				Ledger:       st.v.GetString("ledger"),
				Manual:       st.v.GetString("manual"),
				Entities:     entities,
				ProfilePath:  st.v.GetString("profile"),
				Convention:   st.v.GetString("convention"),
				Epsilon:      st.v.GetFloat64("epsilon"),
				Out:          st.v.GetString("out"),
				JSONOutput:   st.v.GetBool("json"),
				Logger:       st.logger(),
				Stdout:       st.stdout,
				Stderr:       st.stderr,
			}
			if opts.ProfilePath == "" && (st.v.IsSet("rules") || st.v.IsSet("entities")) {
				prof, err := profile.FromViper(st.v)
				if err != nil {
					return err
				}
				opts.Profile = &prof
			}
			if code := cli.ConsolidateCommand(cmd.Context(), opts); code != 0 {
				return exitCodeError{code: code}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("mapping", "", "mapping workbook (path, http(s):// or gs:// URI)")
	flags.String("mapping-sheet", "", "mapping sheet name (default: first sheet)")
	flags.String("ledger", "", "ledger workbook with one sheet per entity")
	flags.String("manual", "", "optional workbook with manual scalars")
	flags.StringSliceVar(&entities, "entities", nil, "entities to consolidate (default: profile roster)")
	flags.String("profile", "", "consolidation profile file (default: built-in)")
	flags.String("convention", "signed", "sign convention: signed or conventional")
	flags.Float64("epsilon", 1, "balance tolerance")
	flags.StringP("out", "o", "", "write the statement to a .csv or .xlsx file")
	flags.Bool("json", false, "print a JSON summary")

	for key, flag := range map[string]string{
		"mapping":       "mapping",
		"mapping_sheet": "mapping-sheet",
		"ledger":        "ledger",
		"manual":        "manual",
		"profile":       "profile",
		"convention":    "convention",
		"epsilon":       "epsilon",
		"out":           "out",
		"json":          "json",
	} {
		_ = st.v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}
