// Package mock provides a test double for the vision.Querier interface.
//
// Answers are looked up by question, so a test can script the free-text
// query and the trigger query independently within the same cycle:
//
//	q := &mock.Querier{Answers: map[string]string{
//	    "is anyone smiling? yes or no": "Yes, the person is smiling.",
//	}}
package mock

import (
	"context"
	"sync"
)

// Call records a single invocation of Query.
type Call struct {
	// Image is the image_url value passed to Query.
	Image string
	// Question is the question passed to Query.
	Question string
}

// Querier is a mock implementation of vision.Querier.
// Zero values make every Query return ("", nil).
type Querier struct {
	mu sync.Mutex

	// Answers maps a question to its scripted answer.
	Answers map[string]string

	// Errs maps a question to a scripted error, taking precedence over Answers.
	Errs map[string]error

	// Err, if non-nil, is returned for every question not present in Errs or
	// Answers.
	Err error

	// Calls records every invocation of Query in order.
	Calls []Call
}

// Query implements vision.Querier.
func (q *Querier) Query(_ context.Context, image, question string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.Calls = append(q.Calls, Call{Image: image, Question: question})

	if err, ok := q.Errs[question]; ok {
		return "", err
	}
	if answer, ok := q.Answers[question]; ok {
		return answer, nil
	}
	return "", q.Err
}

// CallCount returns the number of Query invocations so far.
func (q *Querier) CallCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Calls)
}

// Recorded returns a copy of the call log.
func (q *Querier) Recorded() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Call, len(q.Calls))
	copy(out, q.Calls)
	return out
}
