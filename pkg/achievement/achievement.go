// Package achievement evaluates and unlocks usage badges from a user's
// memory timeline.
package achievement

import "github.com/soulnet-ai/soulnet-go/pkg/storage"

// Achievement types.
const (
	TypePrimeiraMemoria = "primeira_memoria"
	TypeReflexivo       = "reflexivo"
	TypeNostalgico      = "nostalgico"
	TypeExplorador      = "explorador"
)

// Unlock thresholds.
const (
	// NostalgicoThreshold is the total memory count required for nostalgico.
	NostalgicoThreshold = 100

	// ReflexivoStreakDays is the consecutive-day streak required for reflexivo.
	ReflexivoStreakDays = 7
)

// Definition is the user-facing metadata of one achievement.
type Definition struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Definitions returns every achievement definition in presentation order.
func Definitions() []Definition {
	return []Definition{
		{
			Type:        TypePrimeiraMemoria,
			Name:        "Primeira Memória",
			Description: "Registrou sua primeira memória no SoulNet",
			Icon:        "brain",
		},
		{
			Type:        TypeReflexivo,
			Name:        "Reflexivo",
			Description: "Registrou memórias por 7 dias consecutivos",
			Icon:        "calendar-days",
		},
		{
			Type:        TypeNostalgico,
			Name:        "Nostálgico",
			Description: "Criou 100 memórias no total",
			Icon:        "heart",
		},
		{
			Type:        TypeExplorador,
			Name:        "Explorador",
			Description: "Usou todos os tipos de memória disponíveis",
			Icon:        "compass",
		},
	}
}

// Check is the evaluation outcome for one achievement type.
type Check struct {
	// Type is the achievement type.
	Type string `json:"type"`

	// Unlocked reports whether the achievement is unlocked after this
	// evaluation.
	Unlocked bool `json:"unlocked"`

	// IsNew reports whether this evaluation performed the unlock.
	IsNew bool `json:"isNew"`
}

// hasAllTypes reports whether the memories cover every defined memory type.
func hasAllTypes(memories []*storage.Memory) bool {
	seen := make(map[storage.MemoryType]bool, len(memories))
	for _, m := range memories {
		seen[m.Type] = true
	}
	for _, t := range storage.MemoryTypes() {
		if !seen[t] {
			return false
		}
	}
	return true
}
