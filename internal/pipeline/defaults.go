package pipeline

// Canonical stage names for the manuscript pipeline.
const (
	StageAnalysis   = "analysis"
	StagePlanning   = "planning"
	StageAssessment = "assessment"
	StageResearch   = "research"
	StageDrafting   = "drafting"
	StageAssembly   = "assembly"
	StageReview     = "review"
)

// Default returns the built-in manuscript pipeline. Research waits for the
// journal assessment so literature collection can respect the guidelines;
// drafting needs the outline and the collected evidence.
func Default() Definition {
	def := Definition{
		ID:   "manuscript",
		Name: "Manuscript generation pipeline",
		Stages: []StageRef{
			{Name: StageAnalysis, Description: "Analyze the project inputs"},
			{Name: StagePlanning, Description: "Outline the manuscript", DependsOn: []string{StageAnalysis}},
			{Name: StageAssessment, Description: "Assess fit against journal guidelines", DependsOn: []string{StagePlanning}},
			{Name: StageResearch, Description: "Collect literature and evidence", DependsOn: []string{StagePlanning, StageAssessment}},
			{Name: StageDrafting, Description: "Draft the manuscript sections", DependsOn: []string{StagePlanning, StageResearch}},
			{Name: StageAssembly, Description: "Assemble sections into the manuscript", DependsOn: []string{StageDrafting}},
			{Name: StageReview, Description: "Critique the assembled manuscript", DependsOn: []string{StageAssembly}},
		},
	}
	normalized, err := def.Normalized()
	if err != nil {
		// The built-in definition is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return normalized
}
