package chat

import (
	"regexp"
	"strings"
)

var (
	mentionPattern = regexp.MustCompile(`(?:^|\s)@([\p{L}\p{N}_.-]+)`)
	hashtagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_]+)`)
)

// extractMentions 提取 @提及，去重并保持出现顺序
func extractMentions(body string) []string {
	return collect(mentionPattern, body, false)
}

// extractHashtags 提取 #话题，统一转为小写
func extractHashtags(body string) []string {
	return collect(hashtagPattern, body, true)
}

func collect(re *regexp.Regexp, body string, lower bool) []string {
	matches := re.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		v := strings.TrimRight(m[1], ".-")
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
