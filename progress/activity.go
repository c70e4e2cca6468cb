// Package progress carries activity progress reported by the widget, either
// directly or from a widget running inside an LTI or video-resource iframe,
// and decides completion against the activity's requirements.
package progress

import (
	"encoding/json"
	"strconv"
)

// Activity is the widget's my_activity payload.
type Activity struct {
	Completion float64 `json:"completion"`
	Comments   int     `json:"comments"`
	Replies    int     `json:"replies"`
	// Raw keeps the payload as received for storage.
	Raw json.RawMessage `json:"-"`
}

// ParseActivity decodes a my_activity payload.
func ParseActivity(data json.RawMessage) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	a.Raw = append(json.RawMessage(nil), data...)
	return &a, nil
}

// Requirements are an activity's completion thresholds. The LMS sends them
// as decimal strings; non-numeric values count as zero.
type Requirements struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	TotalView string `json:"totalview" yaml:"totalview"`
	Comments  string `json:"comments" yaml:"comments"`
	Replies   string `json:"replies" yaml:"replies"`
}

func num(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Learner describes who is watching.
type Learner struct {
	Enrolled  bool
	HasToken  bool
	Moderator bool
}

// CanComplete reports whether completion applies to the learner at all.
func (l Learner) CanComplete() bool {
	return !l.Moderator && l.Enrolled && l.HasToken
}

// Completed reports whether act satisfies req for learner. Without enabled
// requirements an eligible learner is complete; with requirements but no
// activity yet, not.
func Completed(l Learner, req *Requirements, act *Activity) bool {
	if !l.CanComplete() {
		return false
	}
	if req == nil || !req.Enabled {
		return true
	}
	if act == nil {
		return false
	}
	view, comments, replies := num(req.TotalView), num(req.Comments), num(req.Replies)
	if view <= 0 && comments <= 0 && replies <= 0 {
		return true
	}
	return (view == 0 || view <= act.Completion) &&
		(comments == 0 || comments <= float64(act.Comments)) &&
		(replies == 0 || replies <= float64(act.Replies))
}
