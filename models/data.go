package models

// Role pattern lists for non-producing agent classification. A source value
// matches a pattern when the normalized value is a substring of the pattern,
// or the pattern list contains it verbatim.
var memberTypePatterns = []string{
	"office staff / personal assistant",
	"personal assistant / unlicensed assistant",
	"licensed assistant",
	"unlicensed assistant",
	"office staff",
	"office manager / administrator",
	"mls staff",
	"appraiser / appraisal firm",
	"real estate appraiser",
	"association staff",
	"affiliate member",
	"photographer / media provider",
}

var securityClassPatterns = []string{
	"assistant - licensed",
	"assistant - unlicensed",
	"office administrator",
	"office staff",
	"appraiser",
	"mls only - appraiser",
	"affiliate",
	"staff",
}
