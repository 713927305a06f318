package webhook

import "github.com/stretchr/testify/mock"

// MatchEndpoint creates a custom matcher for endpoint arguments in mocks
func MatchEndpoint(matcher func(Endpoint) bool) interface{} {
	return mock.MatchedBy(matcher)
}
