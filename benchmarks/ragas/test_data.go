// ABOUTME: Benchmark scenarios for counseling quality
// ABOUTME: Each scenario scripts user turns plus the ground truth its final turn is scored against

package ragas

// TestScenario is one scripted counseling conversation
type TestScenario struct {
	ID          string
	Name        string
	Description string
	Turns       []ConversationTurn
	GroundTruth GroundTruth
}

// ConversationTurn is a single user message in a scenario
type ConversationTurn struct {
	TurnNumber  int
	UserMessage string
}

// GroundTruth defines what the final query turn is scored against
type GroundTruth struct {
	FinalQueryTurn      int
	ExpectedInResponse  []string // must appear in the reply
	ForbiddenInResponse []string // must not appear in the reply

	// Substrings that should be present in the retrieved passages or in the
	// conversation history handed to the model
	ExpectedContextItems []string
}

// GetTestListening checks that a sleep and family complaint pulls the
// active listening guidance
func GetTestListening() TestScenario {
	return TestScenario{
		ID:          "listen",
		Name:        "Reflective listening retrieval",
		Description: "A client describes poor sleep and irritability; the reply should be grounded in active listening passages",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "I haven't been sleeping and I keep snapping at my kids. I don't know what to do."},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       1,
			ForbiddenInResponse:  []string{"you are diagnosed", "stupid"},
			ExpectedContextItems: []string{"Reflect back the feeling"},
		},
	}
}

// GetTestAnxiety checks retrieval of cognitive techniques for an anxious thought
func GetTestAnxiety() TestScenario {
	return TestScenario{
		ID:          "anxiety",
		Name:        "Anxious thought retrieval",
		Description: "A client predicts catastrophe before a meeting; the cognitive techniques passage should be retrieved",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "Every time I have to talk at work I'm sure everyone will think I'm stupid and my heart races."},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       1,
			ForbiddenInResponse:  []string{"your thought is wrong"},
			ExpectedContextItems: []string{"Anxious thoughts often predict catastrophe"},
		},
	}
}

// GetTestMemory checks that an earlier turn is carried into a later reply
func GetTestMemory() TestScenario {
	return TestScenario{
		ID:          "memory",
		Name:        "Conversation memory recall",
		Description: "The client mentions losing a job, then asks the counselor to recall it",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "I lost my job at the bakery last month and money is tight."},
			{TurnNumber: 2, UserMessage: "Can you remind me what I told you had changed last month?"},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       2,
			ExpectedInResponse:   []string{"job"},
			ExpectedContextItems: []string{"bakery"},
		},
	}
}

// GetTestSafety checks that a drinking and trauma message reaches the
// trauma and substance use guidance
func GetTestSafety() TestScenario {
	return TestScenario{
		ID:          "trauma",
		Name:        "Trauma and substance use retrieval",
		Description: "A client drinks to sleep after an accident; motivational interviewing guidance should be retrieved",
		Turns: []ConversationTurn{
			{TurnNumber: 1, UserMessage: "Since the car accident I only drink so I can fall asleep without the nightmares."},
		},
		GroundTruth: GroundTruth{
			FinalQueryTurn:       1,
			ForbiddenInResponse:  []string{"you are an alcoholic"},
			ExpectedContextItems: []string{"nightmares and avoidance"},
		},
	}
}

// GetAllTests returns every scenario
func GetAllTests() []TestScenario {
	return []TestScenario{
		GetTestListening(),
		GetTestAnxiety(),
		GetTestMemory(),
		GetTestSafety(),
	}
}

// TestResult is the scored outcome of one scenario
type TestResult struct {
	TestID             string         `json:"test_id"`
	TestName           string         `json:"test_name"`
	FaithfulnessScore  float64        `json:"faithfulness_score"`
	ContextRecallScore float64        `json:"context_recall_score"`
	OverallScore       float64        `json:"overall_score"`
	Status             string         `json:"status"`
	Details            map[string]any `json:"details"`
}

// ScenarioByID finds a scenario, reporting false if the id is unknown
func ScenarioByID(id string) (TestScenario, bool) {
	for _, s := range GetAllTests() {
		if s.ID == id {
			return s, true
		}
	}
	return TestScenario{}, false
}
