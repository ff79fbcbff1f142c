package logger

// Output controls what categories of terminal output the CLI prints at each
// verbosity level. Log levels filter by severity; categories filter by kind.
//
//	0 (default) - report location, outcome table, errors with hints, progress
//	1 (-v)      - + batch start line, skipped sources, memory warnings
//	2 (-vv)     - + effective configuration, phase timing
//	3 (-vvv)    - + prompts and raw model output

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	OutputResults  OutputCategory = iota // report path, outcome table
	OutputErrors                         // errors with hints
	OutputProgress                       // per-document spinner

	OutputRunInfo // batch start line, provider warnings
	OutputSkipped // sources ingest dropped

	OutputConfig // effective configuration
	OutputTiming // phase durations

	OutputPrompts // prompts and raw completions
)

var categoryLevels = map[OutputCategory]int{
	OutputResults:  VerbosityUser,
	OutputErrors:   VerbosityUser,
	OutputProgress: VerbosityUser,

	OutputRunInfo: VerbosityInfo,
	OutputSkipped: VerbosityInfo,

	OutputConfig: VerbosityDebug,
	OutputTiming: VerbosityDebug,

	OutputPrompts: VerbosityTrace,
}

var categoryNames = map[OutputCategory]string{
	OutputResults:  "results",
	OutputErrors:   "errors",
	OutputProgress: "progress",
	OutputRunInfo:  "run-info",
	OutputSkipped:  "skipped",
	OutputConfig:   "config",
	OutputTiming:   "timing",
	OutputPrompts:  "prompts",
}

// ShouldOutput reports whether category is shown at verbosity.
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// VerbosityDescription describes what a -v count shows, for help text.
func VerbosityDescription(verbosity int) string {
	switch {
	case verbosity <= VerbosityUser:
		return "results, errors and progress"
	case verbosity == VerbosityInfo:
		return "above + run details and skipped sources"
	case verbosity == VerbosityDebug:
		return "above + configuration and timing"
	default:
		return "above + prompts and raw model output"
	}
}
