package orchestrator

import (
	"regexp"
	"strings"

	"concierge/internal/domain/conversation"
)

// RouteResult is the router's classification of one inbound message
type RouteResult struct {
	Thread            conversation.Thread
	Confidence        float64
	ShouldInterrupt   bool
	HandoffRequested  bool
	SentimentNegative bool
}

// infoBiasMargin is how far the informational score must exceed the task
// score to pull an active task into the info thread. One stray info hit in
// an otherwise task-shaped reply ("where is it") stays on task; two clear
// hits ("what time do you close?") switch the thread.
const infoBiasMargin = 1

var taskVocabulary = []string{
	"buy", "order", "purchase", "want", "need", "get me",
	"add", "cart", "checkout", "confirm", "cancel", "pay",
	"reserve", "book", "take", "pieces", "units",
}

var infoVocabulary = []string{
	"hours", "open", "close", "closed", "location", "address", "where",
	"when", "how much", "price", "cost", "delivery time", "shipping",
	"what is", "what are", "do you", "info", "tell me about",
}

var handoffVocabulary = []string{
	"human", "operator", "real person", "speak to someone",
	"talk to a person", "manager", "support agent", "live agent",
}

var negativeVocabulary = []string{
	"terrible", "awful", "useless", "worst", "angry", "furious",
	"frustrated", "annoyed", "ridiculous", "unacceptable", "scam",
	"never again", "waste of time", "disappointed",
}

var affirmations = map[string]struct{}{
	"yes": {}, "yep": {}, "yeah": {}, "ok": {}, "okay": {},
	"sure": {}, "done": {}, "fine": {}, "correct": {}, "right": {},
	"go ahead": {}, "sounds good": {},
}

// quantityPattern matches "5 widgets" style phrases, a strong task signal
var quantityPattern = regexp.MustCompile(`\b\d+\s+\p{L}{2,}`)

// Route classifies an inbound message into a topic thread given the current
// FSM position. Pure function of its inputs; all side effects belong to the
// orchestrator.
func Route(message string, currentState conversation.AgentState, currentThread conversation.Thread) RouteResult {
	normalized := strings.ToLower(strings.TrimSpace(message))
	activeTask := currentState.ActiveTask()

	result := RouteResult{
		HandoffRequested:  countHits(normalized, handoffVocabulary) > 0,
		SentimentNegative: countHits(normalized, negativeVocabulary) >= 2,
	}

	// Short affirmations mid-task always stay in the task thread so a bare
	// "yes" to a confirmation prompt cannot derail the flow
	if activeTask {
		if _, ok := affirmations[strings.Trim(normalized, ".!")]; ok {
			result.Thread = conversation.ThreadTask
			result.Confidence = 0.95
			return result
		}
	}

	taskScore := countHits(normalized, taskVocabulary)
	infoScore := countHits(normalized, infoVocabulary)
	if quantityPattern.MatchString(normalized) {
		taskScore += 2
	}

	switch {
	case infoScore > taskScore && activeTask && infoScore-taskScore <= infoBiasMargin:
		// Mildly informational while a task is in flight: stay on task
		result.Thread = conversation.ThreadTask
	case infoScore > taskScore:
		result.Thread = conversation.ThreadInfo
	case taskScore > infoScore:
		result.Thread = conversation.ThreadTask
	default:
		// Tie: keep whatever thread the conversation is already on
		result.Thread = currentThread
	}

	result.Confidence = scoreConfidence(taskScore, infoScore)
	result.ShouldInterrupt = activeTask &&
		currentThread == conversation.ThreadTask &&
		result.Thread == conversation.ThreadInfo

	return result
}

// IsAffirmation reports whether the message is a bare positive reply
func IsAffirmation(message string) bool {
	normalized := strings.Trim(strings.ToLower(strings.TrimSpace(message)), ".!")
	_, ok := affirmations[normalized]
	return ok
}

var rejections = map[string]struct{}{
	"no": {}, "nope": {}, "cancel": {}, "stop": {}, "never mind": {}, "nevermind": {},
}

// IsRejection reports whether the message is a bare negative reply
func IsRejection(message string) bool {
	normalized := strings.Trim(strings.ToLower(strings.TrimSpace(message)), ".!")
	_, ok := rejections[normalized]
	return ok
}

func countHits(message string, vocabulary []string) int {
	hits := 0
	for _, term := range vocabulary {
		if strings.Contains(message, term) {
			hits++
		}
	}
	return hits
}

func scoreConfidence(taskScore, infoScore int) float64 {
	diff := taskScore - infoScore
	if diff < 0 {
		diff = -diff
	}
	confidence := 0.5 + 0.1*float64(diff)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
