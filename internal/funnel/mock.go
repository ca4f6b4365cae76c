package funnel

import (
	"context"
	"time"
)

// MockEngine は固定のカタログから結果を組み立てるエンジンです。
// Delay は外部データソースへの問い合わせ時間を模擬します。
type MockEngine struct {
	Delay time.Duration
	Now   func() time.Time
}

// NewMockEngine は MockEngine を作成します。
func NewMockEngine(delay time.Duration) *MockEngine {
	return &MockEngine{Delay: delay, Now: time.Now}
}

// Analyze は Delay だけ待機したあとにレポートを返します。
func (e *MockEngine) Analyze(ctx context.Context, analysisID string, req Request) (*Report, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	req = req.Normalize()
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	var national, local []Competitor
	remaining := req.MaxCompetitors
	if req.IncludeNational {
		national = take(nationalCatalog(), remaining)
		remaining -= len(national)
	}
	if req.IncludeLocal {
		local = take(localCatalog(), remaining)
	}
	if national == nil {
		national = []Competitor{}
	}
	if local == nil {
		local = []Competitor{}
	}

	return &Report{
		AnalysisID:          analysisID,
		Status:              "completed",
		CoreService:         req.CoreService,
		CorePhrase:          req.CorePhrase,
		Location:            req.Location,
		NationalCompetitors: national,
		LocalCompetitors:    local,
		Insights:            insightsCatalog(),
		Recommendations:     recommendationsCatalog(),
		AssetsGathered:      gatherAssets(national, local),
		ContentStrategy:     contentStrategyCatalog(),
		CreatedAt:           now().UTC(),
	}, nil
}

func take(list []Competitor, n int) []Competitor {
	if n <= 0 {
		return []Competitor{}
	}
	if len(list) > n {
		return list[:n]
	}
	return list
}

func gatherAssets(groups ...[]Competitor) AssetsGathered {
	var (
		breakdown AssetCounts
		top       []string
	)
	for _, group := range groups {
		for _, c := range group {
			breakdown = breakdown.add(c.Assets)
			top = append(top, c.Name+": "+c.TopPages[0])
		}
	}
	total := breakdown.Videos + breakdown.BlogPosts + breakdown.SocialPosts + breakdown.AdCreatives +
		breakdown.LandingPages + breakdown.Testimonials + breakdown.CaseStudies + breakdown.Downloadables
	if top == nil {
		top = []string{}
	}
	return AssetsGathered{
		TotalAssets:   total,
		Breakdown:     breakdown,
		TopPerforming: top,
	}
}

func nationalCatalog() []Competitor {
	return []Competitor{
		{
			Name:         "competitor1.com",
			Authority:    85,
			ContentFocus: "Video-heavy",
			Assets: AssetCounts{
				Videos: 15, BlogPosts: 25, SocialPosts: 100, AdCreatives: 20,
				LandingPages: 10, Testimonials: 30, CaseStudies: 8, Downloadables: 5,
			},
			SocialProfiles:  []string{"@comp1 (50k followers)"},
			AdSpendEstimate: "$50k-100k/month",
			TopPages:        []string{"/services", "/case-studies", "/blog"},
			GBPOptimization: "No local focus - national only",
			CompetitorType:  CompetitorNational,
		},
		{
			Name:         "competitor2.com",
			Authority:    78,
			ContentFocus: "Blog-focused",
			Assets: AssetCounts{
				Videos: 8, BlogPosts: 45, SocialPosts: 80, AdCreatives: 15,
				LandingPages: 8, Testimonials: 25, CaseStudies: 12, Downloadables: 10,
			},
			SocialProfiles:  []string{"@comp2 (35k followers)"},
			AdSpendEstimate: "$25k-50k/month",
			TopPages:        []string{"/blog", "/resources", "/tools"},
			GBPOptimization: "Limited local presence",
			CompetitorType:  CompetitorNational,
		},
	}
}

func localCatalog() []Competitor {
	return []Competitor{
		{
			Name:         "localagency1.com",
			Authority:    45,
			ContentFocus: "Local-focused",
			Assets: AssetCounts{
				Videos: 5, BlogPosts: 20, SocialPosts: 60, AdCreatives: 8,
				LandingPages: 5, Testimonials: 15, CaseStudies: 5, Downloadables: 3,
			},
			SocialProfiles:  []string{"@localagency1 (5k followers)"},
			AdSpendEstimate: "$5k-10k/month",
			TopPages:        []string{"/local-seo", "/local-marketing"},
			GBPOptimization: "Fully optimized with 150+ reviews",
			LocalCitations:  120,
			YelpRating:      "4.6 stars (67 reviews)",
			CompetitorType:  CompetitorLocal,
		},
	}
}

func insightsCatalog() Insights {
	return Insights{
		SearchVolume:     "2,400/month",
		CompetitionLevel: "Medium",
		RankingPatterns: []string{
			"Video content dominates national rankings (80% of top 5)",
			"Local competitors focus heavily on Google Business Profile optimization",
			"Long-form content (2000+ words) ranks better nationally",
			"Social proof is crucial for local market penetration",
		},
		GapAnalysis: []string{
			"No major player combines national authority with local optimization",
			"Video content opportunity in local market",
			"Underutilized: podcast content format",
		},
	}
}

func recommendationsCatalog() Recommendations {
	return Recommendations{
		Immediate: []string{
			"Focus on video-first content strategy",
			"Optimize Google Business Profile completely",
			"Build local citation portfolio (target 150+)",
		},
		ShortTerm: []string{
			"Launch local podcast series",
			"Partner with local businesses for cross-promotion",
			"Create location-based case studies",
		},
		LongTerm: []string{
			"Scale successful local model to multiple cities",
			"Develop proprietary local SEO tools",
			"Build national authority while maintaining local focus",
		},
	}
}

func contentStrategyCatalog() []ContentStage {
	return []ContentStage{
		{
			Stage:         "awareness",
			Format:        "video",
			Ideas:         []string{"How-to tutorials", "Industry insights", "Problem identification"},
			Channels:      []string{"YouTube", "TikTok", "Instagram"},
			PageStructure: "Educational hub page with clear navigation",
		},
		{
			Stage:         "consideration",
			Format:        "written",
			Ideas:         []string{"Case studies", "Service comparisons", "FAQ sections"},
			Channels:      []string{"Website", "Blog", "LinkedIn"},
			PageStructure: "Service pages with social proof",
		},
		{
			Stage:         "decision",
			Format:        "video",
			Ideas:         []string{"Client testimonials", "Consultation previews", "Results demonstrations"},
			Channels:      []string{"Website", "Email", "Sales presentations"},
			PageStructure: "Landing pages with clear CTAs",
		},
	}
}
