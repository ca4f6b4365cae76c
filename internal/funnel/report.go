package funnel

import "time"

// CompetitorType は競合の種別です。
type CompetitorType string

const (
	CompetitorNational CompetitorType = "national"
	CompetitorLocal    CompetitorType = "local"
)

// AssetCounts はコンテンツ資産の種類別件数です。
type AssetCounts struct {
	Videos        int `json:"videos"`
	BlogPosts     int `json:"blog_posts"`
	SocialPosts   int `json:"social_posts"`
	AdCreatives   int `json:"ad_creatives"`
	LandingPages  int `json:"landing_pages"`
	Testimonials  int `json:"testimonials"`
	CaseStudies   int `json:"case_studies"`
	Downloadables int `json:"downloadables"`
}

func (a AssetCounts) add(b AssetCounts) AssetCounts {
	return AssetCounts{
		Videos:        a.Videos + b.Videos,
		BlogPosts:     a.BlogPosts + b.BlogPosts,
		SocialPosts:   a.SocialPosts + b.SocialPosts,
		AdCreatives:   a.AdCreatives + b.AdCreatives,
		LandingPages:  a.LandingPages + b.LandingPages,
		Testimonials:  a.Testimonials + b.Testimonials,
		CaseStudies:   a.CaseStudies + b.CaseStudies,
		Downloadables: a.Downloadables + b.Downloadables,
	}
}

// Competitor は分析対象となった競合サイトの情報です。
type Competitor struct {
	Name            string         `json:"name"`
	Authority       int            `json:"authority"`
	ContentFocus    string         `json:"content_focus"`
	Assets          AssetCounts    `json:"assets"`
	SocialProfiles  []string       `json:"social_profiles"`
	AdSpendEstimate string         `json:"ad_spend_estimate"`
	TopPages        []string       `json:"top_pages"`
	GBPOptimization string         `json:"gbp_optimization"`
	LocalCitations  int            `json:"local_citations,omitempty"`
	YelpRating      string         `json:"yelp_rating,omitempty"`
	CompetitorType  CompetitorType `json:"competitor_type"`
}

// Insights は検索市場の傾向です。
type Insights struct {
	SearchVolume     string   `json:"search_volume"`
	CompetitionLevel string   `json:"competition_level"`
	RankingPatterns  []string `json:"ranking_patterns"`
	GapAnalysis      []string `json:"gap_analysis"`
}

// Recommendations は期間別の推奨施策です。
type Recommendations struct {
	Immediate []string `json:"immediate"`
	ShortTerm []string `json:"short_term"`
	LongTerm  []string `json:"long_term"`
}

// AssetsGathered は収集した競合資産の集計です。
type AssetsGathered struct {
	TotalAssets   int         `json:"total_assets"`
	Breakdown     AssetCounts `json:"breakdown"`
	TopPerforming []string    `json:"top_performing"`
}

// ContentStage はファネル段階ごとのコンテンツ戦略です。
type ContentStage struct {
	Stage         string   `json:"stage"`
	Format        string   `json:"format"`
	Ideas         []string `json:"ideas"`
	Channels      []string `json:"channels"`
	PageStructure string   `json:"page_structure"`
}

// Report は分析エンジンが生成する結果ドキュメントです。
type Report struct {
	AnalysisID          string          `json:"analysis_id"`
	Status              string          `json:"status"`
	CoreService         string          `json:"core_service"`
	CorePhrase          string          `json:"core_phrase"`
	Location            string          `json:"location,omitempty"`
	NationalCompetitors []Competitor    `json:"national_competitors"`
	LocalCompetitors    []Competitor    `json:"local_competitors"`
	Insights            Insights        `json:"insights"`
	Recommendations     Recommendations `json:"recommendations"`
	AssetsGathered      AssetsGathered  `json:"assets_gathered"`
	ContentStrategy     []ContentStage  `json:"content_strategy"`
	CreatedAt           time.Time       `json:"created_at"`
}
