// Package funnel はファネル調査（競合分析）のドメイン型と分析エンジンを提供します。
package funnel

import "strings"

// 既定値
const (
	DefaultMaxCompetitors = 5
	MaxCompetitorsLimit   = 50
)

// Request は検証済みの分析リクエストです。ジョブ作成後は変更しません。
type Request struct {
	Description     string `json:"description"`
	CoreService     string `json:"core_service"`
	TargetAudience  string `json:"target_audience,omitempty"`
	Location        string `json:"location,omitempty"`
	CorePhrase      string `json:"core_phrase"`
	IncludeLocal    bool   `json:"include_local"`
	IncludeNational bool   `json:"include_national"`
	MaxCompetitors  int    `json:"max_competitors"`
}

// Normalize は前後の空白を取り除き、未指定の値に既定値を設定したコピーを返します。
func (r Request) Normalize() Request {
	r.Description = strings.TrimSpace(r.Description)
	r.CoreService = strings.TrimSpace(r.CoreService)
	r.TargetAudience = strings.TrimSpace(r.TargetAudience)
	r.Location = strings.TrimSpace(r.Location)
	r.CorePhrase = strings.TrimSpace(r.CorePhrase)
	if r.MaxCompetitors <= 0 {
		r.MaxCompetitors = DefaultMaxCompetitors
	}
	return r
}
