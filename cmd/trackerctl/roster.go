package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/initiative/internal/game/dice"
	"github.com/cory-johannsen/initiative/internal/game/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Seed encounters from YAML roster files",
}

var rosterLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Add every combatant in a roster file to an encounter",
	Long: `Reads a roster file, rolls initiative for entries with a "roll"
expression, and adds the combatants in file order. Entries with count N become
"Name 1" through "Name N".

Without --encounter a new encounter named after the roster is created.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := roster.LoadFromFile(args[0])
		if err != nil {
			return err
		}
		encID, _ := cmd.Flags().GetString("encounter")

		return withClient(cmd, func(c *apiClient) error {
			out := cmd.OutOrStdout()
			entries, err := r.Resolve(dice.NewLoggedRoller(dice.NewCryptoSource(), c.logger))
			if err != nil {
				return err
			}
			if encID == "" {
				name := r.Name
				if name == "" {
					name = args[0]
				}
				enc, err := c.CreateEncounter(c.ctx, name)
				if err != nil {
					return err
				}
				encID = enc.ID
				fmt.Fprintf(out, "created encounter %s (%s)\n", enc.Name, enc.ID)
			}
			for _, in := range entries {
				cb, err := c.AddCombatant(c.ctx, encID, in)
				if err != nil {
					return fmt.Errorf("adding %q: %w", in.Name, err)
				}
				printCombatant(out, cb)
			}
			return nil
		})
	},
}

func init() {
	rosterLoadCmd.Flags().StringP("encounter", "e", "", "existing encounter id (default: create one)")
	rosterCmd.AddCommand(rosterLoadCmd)
	rootCmd.AddCommand(rosterCmd)
}
