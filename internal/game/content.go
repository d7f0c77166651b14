package game

// Built-in scenario content. The engine treats all of this as opaque data;
// only the per-role partitioning matters to the synchronization logic.

func DefaultScenario() *Scenario {
	return &Scenario{
		Title:   "The Friday Deadline",
		Context: "A client demo is scheduled for Friday morning. The test rig Alex booked for another team has been claimed by Morgan without notice.",
		Steps: map[Role][]Step{
			RoleAssistant: {
				{
					OtherMessage: "I need the rig until Friday. The demo takes priority, everything else can wait.",
					Question:     "Morgan has taken the rig you had already booked out. What do you say?",
					Choices: []Choice{
						{
							Text:     "You can't just grab equipment I reserved. Put it back.",
							Score:    1,
							Feedback: "Defending the booking is fair, but an order invites a counter-order.",
							Tip:      "Name the problem, not the culprit.",
						},
						{
							Text:     "Help me understand the urgency. What breaks if you hand it back Thursday night?",
							Score:    3,
							Feedback: "You acknowledged the pressure and opened the facts before arguing positions.",
						},
						{
							Text:     "Fine, keep it. I'll explain to the other team that it's out of my hands.",
							Score:    0,
							Feedback: "Avoiding the clash moves the conflict onto a third party and teaches Morgan that grabbing works.",
							Tip:      "Accommodation is a choice, not a default.",
						},
						{
							Text:     "Let's check the booking sheet together before either of us decides anything.",
							Score:    2,
							Feedback: "Grounding the discussion in the shared record helps, though it sidesteps Morgan's deadline stress.",
						},
					},
				},
				{
					Context:  "Morgan admits the demo prep is behind because a supplier delivered late.",
					Question: "The real constraint is now on the table. How do you respond?",
					Choices: []Choice{
						{
							Text:     "That's a planning failure on your side. Not my problem to absorb.",
							Score:    0,
							Feedback: "Correct on the facts, corrosive on the relationship. The rig dispute is now a personal one.",
						},
						{
							Text:     "Late delivery is rough. What part of the prep actually needs this specific rig?",
							Score:    3,
							Feedback: "Separating the person from the problem reveals how much of the demand is negotiable.",
							Tip:      "Most 'I need it all week' claims shrink under a gentle 'which part?'.",
						},
						{
							Text:     "Suppose we split days: you prep Wednesday, the other team tests Thursday.",
							Score:    2,
							Feedback: "A workable compromise, offered a beat early. You proposed terms before the need was sized.",
						},
					},
				},
				{
					OtherMessage: "If the demo slips, leadership hears about it. I can't be the one holding the bag.",
					Question:     "Morgan is signalling fear of blame. Your closing move?",
					Choices: []Choice{
						{
							Text:     "Then book your equipment properly next time and there is no bag to hold.",
							Score:    0,
							Feedback: "The last word won, the working relationship lost.",
						},
						{
							Text:     "Nobody is holding a bag alone. Let's write the shared plan down and send it to both leads.",
							Score:    3,
							Feedback: "Making the agreement visible removes the blame threat that was fueling the conflict.",
						},
						{
							Text:     "I'll lend you the rig, but you owe the other team the Thursday slot in writing.",
							Score:    2,
							Feedback: "A firm trade with a guarantee. Slightly transactional, but it holds.",
						},
					},
				},
			},
			RoleEngineer: {
				{
					OtherMessage: "That rig was booked for the platform team. You took it without asking anyone.",
					Question:     "Alex confronts you in the workshop doorway. What do you say?",
					Choices: []Choice{
						{
							Text:     "The demo outranks a routine test slot. That's just how priorities work.",
							Score:    1,
							Feedback: "Maybe true, but unilateral ranking reads as contempt for the booking system everyone else follows.",
						},
						{
							Text:     "You're right, I skipped the booking. I'm cornered by Friday's demo. Can we solve this together?",
							Score:    3,
							Feedback: "Owning the shortcut first disarms the accusation and converts it into a joint problem.",
							Tip:      "An early, specific acknowledgement is cheaper than a late, general one.",
						},
						{
							Text:     "Take it up with my manager if it bothers you.",
							Score:    0,
							Feedback: "Escalation as an opener burns the direct channel you will need all week.",
						},
					},
				},
				{
					Context:  "You explain the supplier slipped and the demo prep is two days behind.",
					Question: "Alex asks which parts of the prep truly need this rig. How do you answer?",
					Choices: []Choice{
						{
							Text:     "All of it. I can't risk carving the week up.",
							Score:    0,
							Feedback: "Overclaiming need reads as bad faith once the calibration-only truth surfaces.",
						},
						{
							Text:     "Honestly, just the calibration runs. Two half-days, if they're uninterrupted.",
							Score:    3,
							Feedback: "Sizing your real need honestly is what makes a split even possible.",
							Tip:      "Precision about needs is a concession that costs nothing.",
						},
						{
							Text:     "Hard to say. Let me keep it and I'll release it when I can.",
							Score:    1,
							Feedback: "Vagueness preserves your flexibility at the price of Alex's trust.",
						},
					},
				},
				{
					OtherMessage: "Let's write the shared plan down and send it to both leads, so nobody's holding the bag alone.",
					Question:     "Alex offers a visible joint plan. Your closing move?",
					Choices: []Choice{
						{
							Text:     "Deal. I'll draft it now and you review before it goes out.",
							Score:    3,
							Feedback: "Taking the drafting work yourself repays the shortcut you opened with.",
						},
						{
							Text:     "Fine, but leave my supplier problem out of the write-up.",
							Score:    1,
							Feedback: "Hiding the cause invites the blame you are trying to avoid when the timeline is questioned later.",
						},
						{
							Text:     "No paper trail. We handle this between us.",
							Score:    0,
							Feedback: "Refusing visibility re-creates exactly the ambiguity that started the conflict.",
						},
					},
				},
			},
		},
	}
}

func DefaultBriefings() map[Role]Briefing {
	return map[Role]Briefing{
		RoleAssistant: {
			Name: "Alex",
			Role: "Workshop Assistant",
			Situation: "You manage the workshop booking sheet and you are proud that it works. " +
				"This morning the platform team found their reserved test rig gone: Morgan wheeled it off " +
				"without a word. This is the third time an engineer has bypassed the sheet this quarter, " +
				"and each time it lands on you to apologise to the team that lost its slot. You are done " +
				"absorbing that. At the same time, you know the Friday client demo matters to everyone, " +
				"including you.",
		},
		RoleEngineer: {
			Name: "Morgan",
			Role: "Demo Engineer",
			Situation: "Your supplier delivered the sensor package two days late and the Friday client " +
				"demo is now at risk. The only calibrated rig in the building was sitting unused when you " +
				"walked past, so you took it, intending to sort the paperwork later. You know it was " +
				"booked. If the demo slips, leadership will ask you, and only you, why. You respect Alex " +
				"but the booking sheet feels like bureaucracy when a client is about to be in the room.",
		},
	}
}

func DefaultLearningPoints() []LearningPoint {
	return []LearningPoint{
		{
			Title:   "Positions hide interests",
			Content: "\"I need the rig all week\" and \"put it back\" are positions. The interests underneath, two uninterrupted calibration half-days and a booking system people can trust, were compatible all along. Conflicts shrink when someone asks the sizing question.",
		},
		{
			Title:   "Both briefings were reasonable",
			Content: "Each of you acted sensibly inside your own briefing and looked unreasonable from the other side. Most workplace conflict is exactly this: partial information held with full confidence.",
		},
		{
			Title:   "Early ownership is cheap",
			Content: "Acknowledging the skipped booking in the first exchange cost Morgan one sentence. The same acknowledgement after an hour of argument would have read as a defeat.",
		},
		{
			Title:   "Make agreements visible",
			Content: "The blame fear driving the escalation dissolved the moment the plan was written down and shared with both leads. Private deals protect no one; visible ones protect everyone.",
		},
	}
}
