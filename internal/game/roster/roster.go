// Package roster loads prepared combatant lists from YAML so a GM can seed an
// encounter in one step.
package roster

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/game/dice"
)

// MaxCount bounds Entry.Count.
const MaxCount = 50

// Entry is one line of a roster: a player, a monster, or a group of identical
// monsters when Count > 1.
type Entry struct {
	Name   string `yaml:"name"`
	Player bool   `yaml:"player"`
	// Initiative is a fixed roll. Exactly one of Initiative and Roll is set.
	Initiative *int `yaml:"initiative"`
	// Roll is a dice expression such as "1d20+2", rolled separately per copy.
	Roll  string `yaml:"roll"`
	AC    *int   `yaml:"ac"`
	HP    *int   `yaml:"hp"`
	Count int    `yaml:"count"`
}

// Roster is a parsed roster file.
type Roster struct {
	Name       string  `yaml:"name"`
	Combatants []Entry `yaml:"combatants"`
}

// Roller evaluates dice expressions for a named combatant.
type Roller interface {
	RollExpr(label, expr string) (dice.RollResult, error)
}

// Validate checks every entry.
//
// Postcondition: Returns nil iff every entry has a name, exactly one
// initiative source, a parsable roll, Count in [0, MaxCount], and HP >= 0.
func (r *Roster) Validate() error {
	if len(r.Combatants) == 0 {
		return fmt.Errorf("roster: no combatants")
	}
	for i, e := range r.Combatants {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("roster entry %d: name must not be empty", i+1)
		}
		if (e.Initiative == nil) == (e.Roll == "") {
			return fmt.Errorf("roster entry %q: set exactly one of initiative or roll", e.Name)
		}
		if e.Roll != "" {
			if _, err := dice.Parse(e.Roll); err != nil {
				return fmt.Errorf("roster entry %q: %w", e.Name, err)
			}
		}
		if e.Count < 0 || e.Count > MaxCount {
			return fmt.Errorf("roster entry %q: count must be between 0 and %d", e.Name, MaxCount)
		}
		if e.HP != nil && *e.HP < 0 {
			return fmt.Errorf("roster entry %q: hp must not be negative", e.Name)
		}
	}
	return nil
}

// Resolve expands r into combatant payloads in file order. An entry with
// Count N > 1 yields "Name 1" through "Name N", each with its own roll.
//
// Precondition: r.Validate() == nil; roller must be non-nil when any entry rolls.
// Postcondition: Every returned payload passes combat.NewCombatant.Validate.
func (r *Roster) Resolve(roller Roller) ([]combat.NewCombatant, error) {
	var out []combat.NewCombatant
	for _, e := range r.Combatants {
		n := e.Count
		if n == 0 {
			n = 1
		}
		for i := 1; i <= n; i++ {
			name := strings.TrimSpace(e.Name)
			if n > 1 {
				name = fmt.Sprintf("%s %d", name, i)
			}
			initiative := e.Initiative
			if e.Roll != "" {
				res, err := roller.RollExpr(name, e.Roll)
				if err != nil {
					return nil, fmt.Errorf("rolling initiative for %q: %w", name, err)
				}
				initiative = combat.Int(res.Total())
			}
			out = append(out, combat.NewCombatant{
				Name:           name,
				InitiativeRoll: combat.Int(*initiative),
				ArmorClass:     copyInt(e.AC),
				MaxHP:          copyInt(e.HP),
				IsPlayer:       e.Player,
			})
		}
	}
	return out, nil
}

// LoadFromBytes parses and validates a roster.
func LoadFromBytes(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadFromFile reads and validates the roster at path.
func LoadFromFile(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	return combat.Int(*v)
}
