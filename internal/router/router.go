// Package router classifies intercepted requests into handling policies.
package router

import (
	"net/url"
	"strings"
)

// RouteKind is the handling policy selected for a request
type RouteKind int

const (
	RouteShell RouteKind = iota
	RouteStatic
	RouteSubmission
	RouteQuizData
	RouteAPI
)

func (k RouteKind) String() string {
	switch k {
	case RouteStatic:
		return "static"
	case RouteSubmission:
		return "submission"
	case RouteQuizData:
		return "quiz-data"
	case RouteAPI:
		return "api"
	default:
		return "shell"
	}
}

const (
	staticPrefix  = "/static/"
	apiPrefix     = "/api/"
	quizPrefix    = "/api/quiz/"
	submitSegment = "submit"
)

type rule struct {
	kind  RouteKind
	match func(c *Classifier, method, path string) bool
}

// Rules are evaluated in order; the first match wins. Submission must precede quiz-data
// because a submission path is a sub-path of a quiz path.
var rules = []rule{
	{RouteStatic, func(c *Classifier, _, path string) bool {
		return c.assets[path] || strings.HasPrefix(path, staticPrefix)
	}},
	{RouteSubmission, func(_ *Classifier, _, path string) bool {
		return isSubmission(path)
	}},
	{RouteQuizData, func(_ *Classifier, method, path string) bool {
		return method == "GET" && QuizName(path) != ""
	}},
	{RouteAPI, func(_ *Classifier, _, path string) bool {
		return strings.HasPrefix(path, apiPrefix)
	}},
}

// Classifier maps a request to a RouteKind
type Classifier struct {
	assets map[string]bool
}

// NewClassifier creates a classifier that treats every manifest path as a static asset
func NewClassifier(manifest []string) *Classifier {
	assets := make(map[string]bool, len(manifest))
	for _, p := range manifest {
		assets[p] = true
	}
	return &Classifier{assets: assets}
}

// Classify returns the policy for a request. Anything no rule claims is a shell request.
func (c *Classifier) Classify(method, path string) RouteKind {
	for _, r := range rules {
		if r.match(c, method, path) {
			return r.kind
		}
	}
	return RouteShell
}

// quizSegments splits /api/quiz/<name>/... into its segments after the quiz prefix
func quizSegments(path string) []string {
	if !strings.HasPrefix(path, quizPrefix) {
		return nil
	}
	rest := strings.Trim(strings.TrimPrefix(path, quizPrefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func isSubmission(path string) bool {
	segs := quizSegments(path)
	if len(segs) == 0 {
		return false
	}
	// /api/quiz/submit is the legacy form with the quiz name only in the body
	return segs[len(segs)-1] == submitSegment
}

// QuizName extracts the decoded quiz name from /api/quiz/<name>[/...].
// The legacy /api/quiz/submit path carries no name.
func QuizName(path string) string {
	segs := quizSegments(path)
	if len(segs) == 0 || (len(segs) == 1 && segs[0] == submitSegment) {
		return ""
	}
	name, err := url.PathUnescape(segs[0])
	if err != nil {
		return segs[0]
	}
	return name
}
