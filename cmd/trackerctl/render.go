package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	currentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	defeatedStyle = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// renderEncounter returns the overlay text for enc: a header and the turn
// order with the current actor marked while the encounter is active.
func renderEncounter(enc *combat.Encounter) string {
	var b strings.Builder
	header := fmt.Sprintf("%s  round %d  %s", enc.Name, enc.Round, enc.State())
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render("id " + enc.ID))
	b.WriteString("\n")

	var currentID string
	if enc.State() == combat.StateActive {
		if cur := enc.CurrentTurn(); cur != nil {
			currentID = cur.ID
		}
	}

	order := enc.TurnOrder()
	if len(order) == 0 {
		b.WriteString(infoStyle.Render("  no combatants in the turn order"))
		b.WriteString("\n")
	}
	for _, c := range order {
		marker := "  "
		if c.ID == currentID {
			marker = "▶ "
		}
		line := fmt.Sprintf("%s%3d  %-20s %s", marker, c.InitiativeRoll, c.Name, combatantStats(c))
		switch {
		case c.ID == currentID:
			line = currentStyle.Render(line)
		case c.IsDefeated():
			line = defeatedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	for _, c := range enc.Combatants {
		if !c.IsActive {
			b.WriteString(infoStyle.Render(fmt.Sprintf("  ---  %-20s benched", c.Name)))
			b.WriteString("\n")
		}
	}
	if enc.Outcome != nil && *enc.Outcome != "" {
		b.WriteString(infoStyle.Render("outcome: " + *enc.Outcome))
		b.WriteString("\n")
	}
	return b.String()
}

func combatantStats(c *combat.Combatant) string {
	var parts []string
	if c.IsPlayer {
		parts = append(parts, "player")
	}
	if c.ArmorClass != nil {
		parts = append(parts, fmt.Sprintf("AC %d", *c.ArmorClass))
	}
	if hp, ok := c.CurrentHP(); ok {
		parts = append(parts, fmt.Sprintf("HP %d/%d", hp, *c.MaxHP))
	}
	if c.IsDefeated() {
		parts = append(parts, "defeated")
	}
	return strings.Join(parts, "  ")
}

func printCombatant(w io.Writer, c *combat.Combatant) {
	fmt.Fprintf(w, "%s  %s  init %d  %s\n", c.ID, c.Name, c.InitiativeRoll, combatantStats(c))
}
