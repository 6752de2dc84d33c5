package room

import (
	"sort"
	"strings"
	"time"

	"chatsphere_server/pkg/errorx"

	"github.com/google/uuid"
)

const (
	minPollOptions = 2
	maxPollOptions = 10
)

// Poll 房间投票；每个身份只保留最后一次选择
type Poll struct {
	ID        string
	Question  string
	Options   []string
	CreatedBy string
	CreatedAt time.Time
	Closed    bool
	ClosedAt  time.Time

	votes map[string]int // identity -> option index
}

// PollView 投票快照
type PollView struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Options    []string  `json:"options"`
	Tallies    []int     `json:"tallies"`
	TotalVotes int       `json:"total_votes"`
	Closed     bool      `json:"closed"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p *Poll) view() PollView {
	v := PollView{
		ID:         p.ID,
		Question:   p.Question,
		Options:    append([]string(nil), p.Options...),
		Tallies:    make([]int, len(p.Options)),
		TotalVotes: len(p.votes),
		Closed:     p.Closed,
		CreatedBy:  p.CreatedBy,
		CreatedAt:  p.CreatedAt,
	}
	for _, idx := range p.votes {
		v.Tallies[idx]++
	}
	return v
}

// CreatePoll 发起投票，仅审核员可用
func (s *Store) CreatePoll(roomID, actorID, question string, options []string) (PollView, Audience, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return PollView{}, Audience{}, errorx.New(errorx.CodeInvalidParam, "投票问题不能为空")
	}
	cleaned := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	if len(cleaned) < minPollOptions || len(cleaned) > maxPollOptions {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeInvalidParam, "投票选项数量必须在 %d 到 %d 之间", minPollOptions, maxPollOptions)
	}

	r, err := s.lock(roomID)
	if err != nil {
		return PollView{}, Audience{}, err
	}
	defer r.mu.Unlock()
	if _, ok := r.members[actorID]; !ok {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", actorID, roomID)
	}
	if !r.isModerator(actorID) {
		return PollView{}, Audience{}, errorx.New(errorx.CodeForbidden, "只有审核员可以发起投票")
	}

	now := s.now()
	p := &Poll{
		ID:        uuid.NewString(),
		Question:  question,
		Options:   cleaned,
		CreatedBy: actorID,
		CreatedAt: now,
		votes:     make(map[string]int),
	}
	r.polls[p.ID] = p
	r.pollOrder = append(r.pollOrder, p.ID)
	r.touch(now)
	return p.view(), r.audience(), nil
}

// VotePoll 投票；再次投票会替换之前的选择，Votes 计数器只在首次投票时增加
func (s *Store) VotePoll(roomID, identity, pollID string, option int) (PollView, Audience, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return PollView{}, Audience{}, err
	}
	defer r.mu.Unlock()
	now := s.now()

	m, ok := r.members[identity]
	if !ok {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", identity, roomID)
	}
	if !m.Effective(now).CanSendMessages {
		return PollView{}, Audience{}, errorx.New(errorx.CodeForbidden, "没有投票权限")
	}
	p, ok := r.polls[pollID]
	if !ok {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeNotFound, "投票 %s 不存在", pollID)
	}
	if p.Closed {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeForbidden, "投票 %s 已结束", pollID)
	}
	if option < 0 || option >= len(p.Options) {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeInvalidParam, "选项 %d 不存在", option)
	}

	if _, voted := p.votes[identity]; !voted {
		r.counters.Votes++
	}
	p.votes[identity] = option
	m.LastActivity = now
	r.touch(now)
	return p.view(), r.audience(), nil
}

// ClosePoll 结束投票，仍在房间内的审核员或发起人可用；重复结束为空操作
func (s *Store) ClosePoll(roomID, actorID, pollID string) (PollView, Audience, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return PollView{}, Audience{}, err
	}
	defer r.mu.Unlock()

	if _, ok := r.members[actorID]; !ok {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", actorID, roomID)
	}
	p, ok := r.polls[pollID]
	if !ok {
		return PollView{}, Audience{}, errorx.Newf(errorx.CodeNotFound, "投票 %s 不存在", pollID)
	}
	if actorID != p.CreatedBy && !r.isModerator(actorID) {
		return PollView{}, Audience{}, errorx.New(errorx.CodeForbidden, "没有结束投票的权限")
	}
	if !p.Closed {
		p.Closed = true
		p.ClosedAt = s.now()
	}
	return p.view(), r.audience(), nil
}

// ReactionUpdate 表情回应变更
type ReactionUpdate struct {
	MessageID string         `json:"message_id"`
	Identity  string         `json:"identity"`
	Emoji     string         `json:"emoji"`
	Added     bool           `json:"added"`
	Tally     map[string]int `json:"tally"` // emoji -> count
}

// React 对历史消息做表情回应；同一表情再次回应即撤销，不同表情则替换
func (s *Store) React(roomID, identity, messageID, emoji string) (ReactionUpdate, Audience, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return ReactionUpdate{}, Audience{}, errorx.New(errorx.CodeInvalidParam, "表情不能为空")
	}
	r, err := s.lock(roomID)
	if err != nil {
		return ReactionUpdate{}, Audience{}, err
	}
	defer r.mu.Unlock()
	now := s.now()

	m, ok := r.members[identity]
	if !ok {
		return ReactionUpdate{}, Audience{}, errorx.Newf(errorx.CodeNotMember, "用户 %s 不在房间 %s", identity, roomID)
	}
	if !m.Effective(now).CanSendMessages {
		return ReactionUpdate{}, Audience{}, errorx.New(errorx.CodeForbidden, "没有回应权限")
	}
	msg := r.findMessage(messageID)
	if msg == nil || msg.Status == StatusRemoved {
		return ReactionUpdate{}, Audience{}, errorx.Newf(errorx.CodeNotFound, "消息 %s 不存在", messageID)
	}

	up := ReactionUpdate{MessageID: messageID, Identity: identity, Emoji: emoji}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]string)
	}
	if prev, ok := msg.Reactions[identity]; ok && prev == emoji {
		delete(msg.Reactions, identity)
	} else {
		msg.Reactions[identity] = emoji
		up.Added = true
		r.counters.Reactions++
	}
	up.Tally = tally(msg.Reactions)
	m.LastActivity = now
	r.touch(now)
	return up, r.audience(), nil
}

func tally(reactions map[string]string) map[string]int {
	out := make(map[string]int, len(reactions))
	for _, e := range reactions {
		out[e]++
	}
	return out
}

// Polls 房间内所有投票（按创建顺序）
func (s *Store) Polls(roomID string) ([]PollView, error) {
	r, err := s.lock(roomID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()
	out := make([]PollView, 0, len(r.pollOrder))
	for _, id := range r.pollOrder {
		out = append(out, r.polls[id].view())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
