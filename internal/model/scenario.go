package model

// Choice is one response to a scenario. Its ID doubles as the quality tag
// ("A", "B", "C") that the mission score table is keyed on.
type Choice struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	Feedback string `json:"feedback" yaml:"feedback"`
}

// Scenario is a narrative prompt with two or three choices.
type Scenario struct {
	ID      string   `json:"id" yaml:"id"`
	Chapter int      `json:"chapter" yaml:"chapter"`
	Title   string   `json:"title" yaml:"title"`
	Context string   `json:"context" yaml:"context"`
	Tags    []string `json:"tags" yaml:"tags"`
	Choices []Choice `json:"choices" yaml:"choices"`
}

// Choice looks up a choice by ID.
func (s *Scenario) Choice(id string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// Chapter groups scenarios for the chapter list page.
type Chapter struct {
	Number    int `json:"number"`
	Scenarios int `json:"scenarios"`
}
