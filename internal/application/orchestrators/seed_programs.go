package orchestrators

import (
	"context"
	"log/slog"

	"gymdesk/internal/application/resource"
	"gymdesk/internal/domain/class"
	"gymdesk/internal/domain/program"
)

// ProgramStoreForSeed defines the program operations needed by SeedPrograms.
type ProgramStoreForSeed interface {
	Count(ctx context.Context, f resource.Filters) (int, error)
	Create(ctx context.Context, p program.Program) (program.Program, error)
}

// ClassStoreForSeed defines the class operation needed by SeedPrograms.
type ClassStoreForSeed interface {
	Create(ctx context.Context, c class.Class) (class.Class, error)
}

// SeedProgramsDeps holds dependencies for SeedPrograms.
type SeedProgramsDeps struct {
	Programs ProgramStoreForSeed
	Classes  ClassStoreForSeed
}

type seedProgram struct {
	program program.Program
	classes []class.Class
}

var defaultPrograms = []seedProgram{
	{
		program: program.Program{
			Name:          "Foundations",
			Level:         program.LevelBeginner,
			DurationWeeks: 6,
			Description:   "Learn the **big lifts** with a coach.\nTwo sessions a week.",
		},
		classes: []class.Class{
			{Title: "Foundations Strength", Day: class.Monday, StartTime: "18:00", EndTime: "19:00", Capacity: 12},
			{Title: "Foundations Conditioning", Day: class.Thursday, StartTime: "18:00", EndTime: "18:45", Capacity: 12},
		},
	},
	{
		program: program.Program{
			Name:          "Performance",
			Level:         program.LevelAdvanced,
			DurationWeeks: 12,
			Description:   "Periodised strength and power for experienced lifters.",
		},
		classes: []class.Class{
			{Title: "Power Clean Clinic", Day: class.Saturday, StartTime: "09:00", EndTime: "10:30", Capacity: 8},
		},
	},
	{
		program: program.Program{
			Name:        "Open Gym",
			Level:       program.LevelIntermediate,
			Description: "Unstructured floor time. *Bring a plan.*",
		},
		classes: []class.Class{
			{Title: "Open Gym", Day: class.Sunday, StartTime: "10:00", EndTime: "13:00", Capacity: 30},
		},
	},
}

// ExecuteSeedPrograms creates the default programs and their classes if no program exists.
// PRE: none
// POST: programs are seeded once; later calls are no-ops
func ExecuteSeedPrograms(ctx context.Context, deps SeedProgramsDeps) error {
	existing, err := deps.Programs.Count(ctx, resource.Filters{})
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil // Already seeded
	}

	classes := 0
	for _, sp := range defaultPrograms {
		p, err := deps.Programs.Create(ctx, sp.program)
		if err != nil {
			return err
		}
		for _, c := range sp.classes {
			c.ProgramID = p.ID
			if _, err := deps.Classes.Create(ctx, c); err != nil {
				return err
			}
			classes++
		}
	}

	slog.Info("seed_event", "event", "programs_seeded", "programs", len(defaultPrograms), "classes", classes)
	return nil
}
