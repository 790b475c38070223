package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

var encounterCmd = &cobra.Command{
	Use:     "encounter",
	Aliases: []string{"enc"},
	Short:   "Create, run and end encounters",
}

var encounterCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an encounter in setup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *apiClient) error {
			enc, err := c.CreateEncounter(c.ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc.ID)
			return nil
		})
	},
}

var encounterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every encounter, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *apiClient) error {
			encs, err := c.ListEncounters(c.ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(encs) == 0 {
				fmt.Fprintln(out, "no encounters")
			}
			for _, enc := range encs {
				fmt.Fprintf(out, "%s  %-8s  round %-3d  %d combatants  %s\n",
					enc.ID, enc.State(), enc.Round, len(enc.Combatants), enc.Name)
			}
			return nil
		})
	},
}

var encounterShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one encounter's turn order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showEncounter(cmd, func(c *apiClient) (*combat.Encounter, error) {
			return c.GetEncounter(c.ctx, args[0])
		})
	},
}

var encounterLiveCmd = &cobra.Command{
	Use:   "live",
	Short: "Show the live encounter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *apiClient) error {
			enc, err := c.FetchLive(c.ctx)
			if err != nil {
				return err
			}
			if enc == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no live encounter")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderEncounter(enc))
			return nil
		})
	},
}

var encounterStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start an encounter; only one may be live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showEncounter(cmd, func(c *apiClient) (*combat.Encounter, error) {
			return c.StartEncounter(c.ctx, args[0])
		})
	},
}

var encounterNextCmd = &cobra.Command{
	Use:   "next [ID]",
	Short: "Advance to the next combatant (defaults to the live encounter)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showEncounter(cmd, func(c *apiClient) (*combat.Encounter, error) {
			id, err := c.encounterID(args)
			if err != nil {
				return nil, err
			}
			return c.AdvanceTurn(c.ctx, id)
		})
	},
}

var encounterEndCmd = &cobra.Command{
	Use:   "end [ID]",
	Short: "End an encounter (defaults to the live encounter)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, _ := cmd.Flags().GetString("outcome")
		return showEncounter(cmd, func(c *apiClient) (*combat.Encounter, error) {
			id, err := c.encounterID(args)
			if err != nil {
				return nil, err
			}
			return c.EndEncounter(c.ctx, id, outcome)
		})
	},
}

var encounterDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an encounter and its combatants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *apiClient) error {
			if err := c.DeleteEncounter(c.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		})
	},
}

func showEncounter(cmd *cobra.Command, fn func(c *apiClient) (*combat.Encounter, error)) error {
	return withClient(cmd, func(c *apiClient) error {
		enc, err := fn(c)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderEncounter(enc))
		return nil
	})
}

// encounterID returns args[0], or the live encounter's id when args is empty.
func (c *apiClient) encounterID(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	enc, err := c.CurrentEncounter(c.ctx)
	if errors.Is(err, combat.ErrNotFound) {
		return "", errors.New("no live encounter; pass an encounter id")
	}
	if err != nil {
		return "", err
	}
	return enc.ID, nil
}

func init() {
	encounterEndCmd.Flags().String("outcome", "", "how the encounter ended, e.g. victory")

	encounterCmd.AddCommand(encounterCreateCmd, encounterListCmd, encounterShowCmd, encounterLiveCmd,
		encounterStartCmd, encounterNextCmd, encounterEndCmd, encounterDeleteCmd)
	rootCmd.AddCommand(encounterCmd)
}
