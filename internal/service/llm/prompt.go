package llm

import (
	"encoding/json"
	"fmt"

	"github.com/squigly/coach-api/internal/db/models"
)

// MaxPromptVideos bounds how many uploads are summarized in the prompt.
const MaxPromptVideos = 10

// FixesDelimiter separates the prose analysis from the fixes JSON.
const FixesDelimiter = "---FIXES---"

// VideoSummary is one upload as presented to the model.
type VideoSummary struct {
	Title       string `json:"title"`
	Views       uint64 `json:"views"`
	Likes       uint64 `json:"likes"`
	Comments    uint64 `json:"comments"`
	Duration    string `json:"duration"`
	PublishedAt string `json:"publishedAt"`
	IsShort     string `json:"isShort"`
}

// CoachingRequest is the channel context for one analysis.
type CoachingRequest struct {
	ChannelName  string
	ChannelAbout string
	Goal         string
	Videos       []VideoSummary
}

// Coaching is the parsed model output.
type Coaching struct {
	Analysis string
	Fixes    models.Fixes
	Raw      string
}

// BuildPrompt renders the user message. Only the first MaxPromptVideos videos
// are included.
func BuildPrompt(req CoachingRequest) string {
	videos := req.Videos
	if len(videos) > MaxPromptVideos {
		videos = videos[:MaxPromptVideos]
	}
	summary, _ := json.MarshalIndent(videos, "", "  ")

	return fmt.Sprintf(`You are Squigly, a brutally honest AI coach for YouTube Shorts creators.
Analyze this creator's channel and recent videos without sugarcoating: what is working,
what is failing, and how to grow fast.

Channel Info:
- Name: %s
- About: %s
- Main Goal: %s

Recent Videos (focus on Shorts):
%s

Structure your analysis exactly as:
1. Channel Reality Check (200-300 words): stated goal versus actual performance, covering niche, consistency, hooks, titles and thumbnails.
2. What's Working: the top 3 strengths.
3. What's Killing Growth: the top 5 weaknesses.
4. 30-Day Growth Plan: numbered steps 1-10.
5. Expected Results: a realistic prediction if the plan is followed.

Then output exactly this line:
%s
followed by a single JSON object and nothing else:
{
  "description": "optimized channel description, ready to paste",
  "shortsTitleTemplate": "Shorts title template with placeholders",
  "longformTitleTemplate": "long-form title template",
  "hashtags": "10-15 hashtags for the niche"
}

Be direct and motivational. Focus 80%% on Shorts.`,
		orDefault(req.ChannelName, "Unknown Creator"),
		orDefault(req.ChannelAbout, "No description provided"),
		orDefault(req.Goal, "Grow fast, no specific goal stated"),
		summary,
		FixesDelimiter,
	)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
