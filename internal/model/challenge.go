package model

import (
	"slices"
	"time"
)

// Challenge はユーザー間で共有されるチャレンジを表す。
// クライアントからは作成・削除されず、参加/離脱のみが行われる。
// Participantsの同時更新はゲートウェイ側でlast-write-winsとなる。
type Challenge struct {
	ID           string
	Name         string
	Description  string
	StartDate    time.Time
	EndDate      time.Time
	Participants []string
	CreatedAt    time.Time
}

// HasParticipant は指定ユーザーが参加者に含まれるかを返す。
func (c *Challenge) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}
