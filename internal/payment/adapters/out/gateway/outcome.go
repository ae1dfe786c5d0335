package gateway

import (
	"math/rand/v2"
	"sync"
)

// OutcomeProvider решает исход симулируемой операции.
// В продакшене случайный, в тестах и локально — фиксированный или по списку.
type OutcomeProvider interface {
	Approve() bool
}

// RandomOutcome одобряет с вероятностью Rate
type RandomOutcome struct {
	Rate float64
}

func (r RandomOutcome) Approve() bool {
	return rand.Float64() < r.Rate
}

type FixedOutcome bool

func (f FixedOutcome) Approve() bool { return bool(f) }

// SequenceOutcome выдает исходы по порядку, затем повторяет последний
type SequenceOutcome struct {
	mu       sync.Mutex
	outcomes []bool
	next     int
}

func NewSequenceOutcome(outcomes ...bool) *SequenceOutcome {
	return &SequenceOutcome{outcomes: outcomes}
}

func (s *SequenceOutcome) Approve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return false
	}
	i := min(s.next, len(s.outcomes)-1)
	s.next++
	return s.outcomes[i]
}

// Set заменяет оставшиеся исходы
func (s *SequenceOutcome) Set(outcomes ...bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes, s.next = outcomes, 0
}

// OutcomeFor строит провайдер по режиму из конфигурации
func OutcomeFor(mode string, rate float64) OutcomeProvider {
	switch mode {
	case "approve":
		return FixedOutcome(true)
	case "decline":
		return FixedOutcome(false)
	default:
		return RandomOutcome{Rate: rate}
	}
}
