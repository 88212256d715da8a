package services

import (
	"sort"

	"github.com/tbourn/go-mod-assistant/internal/table"
)

// StatsTable counts successful command invocations by command name.
type StatsTable = table.Table[string, int]

// OpenStatsTable loads statistics.json (or any path).
func OpenStatsTable(path string) (*StatsTable, error) {
	return table.Open[string, int](path, table.StringKeys)
}

// CommandCount is one row of the usage statistics.
type CommandCount struct {
	Command string `json:"command"`
	Count   int    `json:"count"`
}

// StatsService records command usage.
type StatsService struct {
	Table *StatsTable
}

// Record increments the counter for command.
func (s *StatsService) Record(command string) error {
	_, err := s.Table.Update(command, func(cur int, _ bool) (int, bool) {
		return cur + 1, true
	})
	return err
}

// All returns every counter, most used first, ties by name.
func (s *StatsService) All() []CommandCount {
	snap := s.Table.Snapshot()
	out := make([]CommandCount, 0, len(snap))
	for k, v := range snap {
		out = append(out, CommandCount{Command: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Command < out[j].Command
	})
	return out
}
