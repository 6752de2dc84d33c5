package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Classifier 文本分类能力，返回 [0,1] 区间的分数，必须是无副作用的同步调用
type Classifier interface {
	Score(text string) float64
}

// ClassifierFunc 把普通函数适配为 Classifier
type ClassifierFunc func(text string) float64

func (f ClassifierFunc) Score(text string) float64 { return f(text) }

// Fixed 固定分数的分类器，测试和关闭某一路分类时使用
type Fixed float64

func (f Fixed) Score(string) float64 { return clamp(float64(f)) }

// KeywordToxicity 关键词毒性分类：命中词占比放大 5 倍，封顶 1
type KeywordToxicity struct {
	words map[string]struct{}
}

// DefaultToxicWords 默认关键词表
var DefaultToxicWords = []string{"spam", "scam", "fake", "hate"}

// NewKeywordToxicity 以给定词表创建分类器，词表为空时使用默认词表
func NewKeywordToxicity(words ...string) *KeywordToxicity {
	if len(words) == 0 {
		words = DefaultToxicWords
	}
	k := &KeywordToxicity{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		k.words[strings.ToLower(w)] = struct{}{}
	}
	return k
}

func (k *KeywordToxicity) Score(text string) float64 {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		tok = strings.TrimFunc(tok, func(r rune) bool { return unicode.IsPunct(r) })
		if _, ok := k.words[tok]; ok {
			hits++
		}
	}
	return clamp(float64(hits) / float64(len(tokens)) * 5)
}

var spamPattern = regexp.MustCompile(`(?i)(https?://|www\.|\$\d+|buy now|click here)`)

// HeuristicSpam 规则垃圾信息分类：每个链接/价格/引流短语 0.3，出现 5 字符重复片段再加 0.4
type HeuristicSpam struct{}

func (HeuristicSpam) Score(text string) float64 {
	score := 0.3 * float64(len(spamPattern.FindAllStringIndex(text, -1)))
	if repeated(text) {
		score += 0.4
	}
	return clamp(score)
}

// repeated 长度超过 20 且存在紧邻重复的 5 字符片段
func repeated(text string) bool {
	rs := []rune(text)
	if len(rs) <= 20 {
		return false
	}
	for i := 0; i+10 <= len(rs); i++ {
		if string(rs[i:i+5]) == string(rs[i+5:i+10]) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
