package memory

import "strings"

// ExtractTopics returns up to max vocabulary keywords contained in text,
// matched case-insensitively as substrings, in vocabulary order.
func ExtractTopics(text string, vocabulary []string, max int) []string {
	lower := strings.ToLower(text)

	var topics []string
	for _, kw := range vocabulary {
		if len(topics) >= max {
			break
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			topics = append(topics, kw)
		}
	}
	return topics
}
