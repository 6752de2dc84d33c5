// Package moderation 是消息入库前的同步审核步骤
// 只负责分类打分和阈值判定，动作的执行交给 room.Store
package moderation

import (
	"chatsphere_server/internal/service/room"
	"chatsphere_server/pkg/constants"
)

const (
	// FlagScore 超过该分数但未超过房间阈值的消息进入人工复核
	FlagScore = 0.5
	// DeleteScore 超过该分数的被移除消息同时生成 message_delete 动作，否则为 warn
	DeleteScore = 0.9

	ReasonToxic = "toxic"
	ReasonSpam  = "spam"
)

// Verdict 审核结论
type Verdict struct {
	Status   room.Status
	Score    float64
	Toxicity float64
	Spam     float64
	Reason   string
	// Action 仅在 removed 时非空
	Action *room.ModerationAction
}

// Decide 根据两路分数和房间阈值得出审核结论，是纯函数
func Decide(toxicity, spam, threshold float64, enabled bool) Verdict {
	if !enabled {
		return Verdict{Status: room.StatusApproved}
	}
	v := Verdict{Toxicity: toxicity, Spam: spam, Score: toxicity}
	if spam > v.Score {
		v.Score = spam
	}
	switch {
	case v.Score > threshold:
		v.Status = room.StatusRemoved
		v.Reason = ReasonSpam
		if toxicity > spam {
			v.Reason = ReasonToxic
		}
		kind := room.ActionWarn
		if v.Score > DeleteScore {
			kind = room.ActionMessageDelete
		}
		v.Action = &room.ModerationAction{
			ActorID:    constants.AUTOMATED_MODERATOR,
			Kind:       kind,
			Reason:     v.Reason,
			Automated:  true,
			Appealable: true,
		}
	case v.Score > FlagScore:
		v.Status = room.StatusFlagged
		v.Reason = "review"
	default:
		v.Status = room.StatusApproved
	}
	return v
}

// Pipeline 审核流水线，分类器通过构造函数注入
type Pipeline struct {
	toxicity Classifier
	spam     Classifier
}

// NewPipeline 创建审核流水线，nil 分类器按 0 分处理
func NewPipeline(toxicity, spam Classifier) *Pipeline {
	if toxicity == nil {
		toxicity = Fixed(0)
	}
	if spam == nil {
		spam = Fixed(0)
	}
	return &Pipeline{toxicity: toxicity, spam: spam}
}

// NewDefaultPipeline 使用关键词毒性分类和规则垃圾信息分类
func NewDefaultPipeline() *Pipeline {
	return NewPipeline(NewKeywordToxicity(), HeuristicSpam{})
}

// Evaluate 审核一条待发送消息
// 只有文本消息参与内容分类，其余类型直接通过；返回的动作已经填好目标和消息 ID
func (p *Pipeline) Evaluate(msg *room.Message, auto bool, threshold float64) Verdict {
	text := msg.Text()
	if text == nil || !auto {
		return Verdict{Status: room.StatusApproved}
	}
	v := Decide(clamp(p.toxicity.Score(text.Body)), clamp(p.spam.Score(text.Body)), threshold, true)
	if v.Action != nil {
		v.Action.TargetID = msg.SenderID
		v.Action.MessageID = msg.ID
		v.Action.RoomID = msg.RoomID
	}
	return v
}
