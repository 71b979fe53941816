package spam

import (
	"regexp"
	"strings"

	"privmail/backend/internal/domain"
)

// Classifier 垃圾判定接口。
//
// 只作用于收件人副本，发件人副本永远不做判定：发件人总是把
// 自己发出的消息视为正常，这个不对称是刻意的。
type Classifier interface {
	Classify(message *domain.Message) bool
}

// ClassifierFunc 允许用函数直接充当判定器。
type ClassifierFunc func(message *domain.Message) bool

// Classify 实现 Classifier。
func (f ClassifierFunc) Classify(message *domain.Message) bool {
	return f(message)
}

// KeywordClassifier 基于关键词与恶意模式的朴素判定实现。
//
// 这是默认实现，生产部署可以注入任何外部判定服务。
type KeywordClassifier struct {
	maliciousPatterns []*regexp.Regexp
	spamKeywords      []string
	// threshold 命中多少个关键词视为垃圾
	threshold int
}

// NewKeywordClassifier 创建关键词判定器。
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)onload\s*=`),
			regexp.MustCompile(`(?i)onerror\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
		},
		spamKeywords: []string{
			"viagra", "casino", "lottery", "winner", "congratulations",
			"free money", "click here", "limited time", "act now",
			"guaranteed", "no risk", "earn money", "work from home",
		},
		threshold: 3,
	}
}

// Classify 判定一份消息副本是否为垃圾。
func (c *KeywordClassifier) Classify(message *domain.Message) bool {
	content := message.Title + "\n" + message.Body

	for _, pattern := range c.maliciousPatterns {
		if pattern.MatchString(content) {
			return true
		}
	}

	contentLower := strings.ToLower(content)
	hits := 0
	for _, keyword := range c.spamKeywords {
		if strings.Contains(contentLower, keyword) {
			hits++
		}
	}
	return hits >= c.threshold
}
