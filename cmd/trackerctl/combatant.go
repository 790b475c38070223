package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/game/dice"
)

var combatantCmd = &cobra.Command{
	Use:     "combatant",
	Aliases: []string{"cb"},
	Short:   "Add, edit, damage and heal combatants",
}

var combatantAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a combatant with a fixed or rolled initiative",
	Long: `Adds a combatant to --encounter, or to the live encounter when omitted.
Pass either --init for a rolled-at-the-table value or --roll to roll here,
e.g. --roll 1d20+2 or --roll 2d20kh1+2 for advantage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		expr, _ := flags.GetString("roll")
		if flags.Changed("init") == (expr != "") {
			return errors.New("set exactly one of --init or --roll")
		}
		in := combat.NewCombatant{Name: args[0]}
		in.IsPlayer, _ = flags.GetBool("player")
		in.ArmorClass = intFlag(flags, "ac")
		in.MaxHP = intFlag(flags, "hp")
		in.InitiativeRoll = intFlag(flags, "init")

		return withClient(cmd, func(c *apiClient) error {
			encID, err := c.targetEncounter(cmd)
			if err != nil {
				return err
			}
			if expr != "" {
				res, err := dice.NewLoggedRoller(dice.NewCryptoSource(), c.logger).RollExpr(args[0], expr)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				in.InitiativeRoll = combat.Int(res.Total())
			}
			cb, err := c.AddCombatant(c.ctx, encID, in)
			if err != nil {
				return err
			}
			printCombatant(cmd.OutOrStdout(), cb)
			return nil
		})
	},
}

var combatantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an encounter's combatants in insertion order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *apiClient) error {
			encID, err := c.targetEncounter(cmd)
			if err != nil {
				return err
			}
			cs, err := c.ListCombatants(c.ctx, encID)
			if err != nil {
				return err
			}
			for _, cb := range cs {
				printCombatant(cmd.OutOrStdout(), cb)
			}
			return nil
		})
	},
}

var combatantUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change initiative, stats, damage, order or bench status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		patch := combat.CombatantPatch{
			InitiativeRoll: intFlag(flags, "init"),
			ArmorClass:     intFlag(flags, "ac"),
			MaxHP:          intFlag(flags, "hp"),
			DamageTaken:    intFlag(flags, "damage"),
			Order:          intFlag(flags, "order"),
		}
		if flags.Changed("active") {
			v, _ := flags.GetBool("active")
			patch.IsActive = &v
		}
		if patch.Empty() {
			return errors.New("nothing to update; pass at least one flag")
		}
		return withClient(cmd, func(c *apiClient) error {
			cb, err := c.UpdateCombatant(c.ctx, args[0], patch)
			if err != nil {
				return err
			}
			printCombatant(cmd.OutOrStdout(), cb)
			return nil
		})
	},
}

var combatantRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a combatant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *apiClient) error {
			if err := c.RemoveCombatant(c.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed", args[0])
			return nil
		})
	},
}

var combatantDamageCmd = &cobra.Command{
	Use:   "damage ID AMOUNT",
	Short: "Apply damage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAmount(cmd, args, func(c *apiClient, id string, n int) (*combat.Combatant, error) {
			return c.Damage(c.ctx, id, n)
		})
	},
}

var combatantHealCmd = &cobra.Command{
	Use:   "heal ID AMOUNT",
	Short: "Heal damage; damage taken never drops below zero",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyAmount(cmd, args, func(c *apiClient, id string, n int) (*combat.Combatant, error) {
			return c.Heal(c.ctx, id, n)
		})
	},
}

func applyAmount(cmd *cobra.Command, args []string, fn func(c *apiClient, id string, n int) (*combat.Combatant, error)) error {
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("amount %q is not a whole number", args[1])
	}
	return withClient(cmd, func(c *apiClient) error {
		cb, err := fn(c, args[0], n)
		if err != nil {
			return err
		}
		printCombatant(cmd.OutOrStdout(), cb)
		return nil
	})
}

// targetEncounter resolves --encounter, falling back to the live encounter.
func (c *apiClient) targetEncounter(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("encounter")
	if id != "" {
		return c.encounterID([]string{id})
	}
	return c.encounterID(nil)
}

// intFlag returns the flag's value when it was set on the command line.
func intFlag(flags *pflag.FlagSet, name string) *int {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return nil
	}
	return &v
}

func init() {
	for _, c := range []*cobra.Command{combatantAddCmd, combatantListCmd} {
		c.Flags().StringP("encounter", "e", "", "encounter id (default: the live encounter)")
	}
	combatantAddCmd.Flags().Int("init", 0, "initiative value")
	combatantAddCmd.Flags().String("roll", "", "dice expression to roll for initiative, e.g. 1d20+2")
	combatantAddCmd.Flags().Int("ac", 0, "armor class")
	combatantAddCmd.Flags().Int("hp", 0, "maximum hit points")
	combatantAddCmd.Flags().Bool("player", false, "mark as a player character")

	combatantUpdateCmd.Flags().Int("init", 0, "initiative value")
	combatantUpdateCmd.Flags().Int("ac", 0, "armor class")
	combatantUpdateCmd.Flags().Int("hp", 0, "maximum hit points")
	combatantUpdateCmd.Flags().Int("damage", 0, "set damage taken")
	combatantUpdateCmd.Flags().Int("order", 0, "tie-break order key")
	combatantUpdateCmd.Flags().Bool("active", true, "include in the turn order")

	combatantCmd.AddCommand(combatantAddCmd, combatantListCmd, combatantUpdateCmd,
		combatantRemoveCmd, combatantDamageCmd, combatantHealCmd)
	rootCmd.AddCommand(combatantCmd)
}
