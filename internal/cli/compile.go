package cli

import (
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

type compiledRule struct {
	CategoryID   int64   `json:"category_id"`
	StoreID      int64   `json:"store_id"`
	Query        string  `json:"query"`
	MatchesNone  bool    `json:"matches_none"`
	AttributeIDs []int64 `json:"attribute_ids"`
	CategoryIDs  []int64 `json:"category_ids"`
}

type optionRule struct {
	OptionID int64  `json:"option_id"`
	Query    string `json:"query"`
}

type compiledAttribute struct {
	Code         string       `json:"code"`
	AttributeID  int64        `json:"attribute_id"`
	StoreID      int64        `json:"store_id"`
	Options      []optionRule `json:"options"`
	AttributeIDs []int64      `json:"attribute_ids"`
	CategoryIDs  []int64      `json:"category_ids"`
}

func newCompileCommand(opts *options) *cobra.Command {
	var storeID int64

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Show the search queries compiled from merchandising rules",
	}
	cmd.PersistentFlags().Int64Var(&storeID, "store", 0, "store the rule is compiled for")
	_ = cmd.MarkPersistentFlagRequired("store")

	cmd.AddCommand(&cobra.Command{
		Use:   "category <id>",
		Short: "Compile the rule of a virtual category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return apperrors.InvalidInput("category id must be a positive integer")
			}
			comps, err := opts.components(cmd)
			if err != nil {
				return err
			}

			compiled, err := comps.Search.CategoryRule(cmd.Context(), id, storeID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), compiledRule{
				CategoryID:   id,
				StoreID:      storeID,
				Query:        compiled.String(),
				MatchesNone:  compiled.Filter.IsMatchNone(),
				AttributeIDs: orEmpty(compiled.AttributeIDs),
				CategoryIDs:  orEmpty(compiled.CategoryIDs),
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "attribute <code>",
		Short: "Compile the option rules of a virtual attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := opts.components(cmd)
			if err != nil {
				return err
			}

			queries, err := comps.Search.AttributeRules(cmd.Context(), args[0], storeID)
			if err != nil {
				return err
			}
			out := compiledAttribute{
				Code:         args[0],
				AttributeID:  queries.AttributeID,
				StoreID:      storeID,
				Options:      make([]optionRule, 0, len(queries.Queries)),
				AttributeIDs: orEmpty(queries.AttributeIDs),
				CategoryIDs:  orEmpty(queries.CategoryIDs),
			}
			for _, optionID := range slices.Sorted(maps.Keys(queries.Queries)) {
				out.Options = append(out.Options, optionRule{OptionID: optionID, Query: queries.Queries[optionID].String()})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	})
	return cmd
}

func newMappingCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mapping",
		Short: "Print the index field mappings declared by the providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comps, err := opts.components(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"providers":  comps.Sync.Providers(),
				"properties": comps.Sync.MappingProperties(),
			})
		},
	}
}

func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
