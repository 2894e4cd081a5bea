package domain

// Grade band tags accepted from clients.
const (
	GradeK2      = "k-2"
	Grade3to5    = "3-5"
	Grade6to8    = "6-8"
	Grade9to12   = "9-12"
	DefaultGrade = Grade6to8
)

// GradeConfig controls how simple and how long answers for a band should be.
type GradeConfig struct {
	MaxWords      int
	Complexity    string
	AllowExamples bool
}

var gradeConfigs = map[string]GradeConfig{
	GradeK2:    {MaxWords: 50, Complexity: "very simple", AllowExamples: true},
	Grade3to5:  {MaxWords: 100, Complexity: "simple", AllowExamples: true},
	Grade6to8:  {MaxWords: 150, Complexity: "moderate", AllowExamples: false},
	Grade9to12: {MaxWords: 200, Complexity: "advanced", AllowExamples: false},
}

// ResolveGrade returns the canonical band tag and its config. Unknown or empty
// tags resolve to the 6-8 band.
func ResolveGrade(tag string) (string, GradeConfig) {
	if cfg, ok := gradeConfigs[tag]; ok {
		return tag, cfg
	}
	return DefaultGrade, gradeConfigs[DefaultGrade]
}

// GradeLevels lists the accepted band tags from youngest to oldest.
func GradeLevels() []string {
	return []string{GradeK2, Grade3to5, Grade6to8, Grade9to12}
}
