package game

// MaxScore sums the best available score at every step of a track.
func MaxScore(steps []Step) int {
	total := 0
	for _, step := range steps {
		best := 0
		for i, c := range step.Choices {
			if i == 0 || c.Score > best {
				best = c.Score
			}
		}
		total += best
	}
	return total
}

// Tally sums the scores of the recorded choices.
func Tally(records []ChoiceRecord) int {
	total := 0
	for _, r := range records {
		total += r.Score
	}
	return total
}

// BuildResults assembles the final score record a player submits once their
// track is complete.
func BuildResults(p Player, steps []Step, records []ChoiceRecord) Results {
	return Results{
		PlayerID:   p.ID,
		PlayerName: p.Name,
		PlayerRole: p.Role,
		Choices:    records,
		TotalScore: Tally(records),
		MaxScore:   MaxScore(steps),
	}
}
