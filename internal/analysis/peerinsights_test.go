package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/levelx/growth-cli/internal/model"
	"github.com/levelx/growth-cli/pkg/xapi"
)

func testPeer() *model.PeerMatch {
	return &model.PeerMatch{
		Handle:    "peer",
		Followers: 6000,
		Analysis: model.StructuredAnalysis{
			PostsPerWeek:     7,
			MonthlyGrowthPct: 4.2,
		},
	}
}

func TestAugment_FullPath(t *testing.T) {
	social := new(mockSocialClient)
	llm := new(mockCompletionClient)
	social.On("GetUserTweets", mock.Anything, "peer", 10).Return(recentTweets(8), nil)
	llm.On("CompleteJSON", mock.Anything, mock.Anything).
		Return(jsonResponse(`{
			"unique_characteristics": ["posts daily charts"],
			"what_they_do_differently": [
				{"category": "Visuals", "user_approach": "text only", "peer_approach": "charts", "impact": "3x views", "example": "Post 1"}
			],
			"tactical_insights": [
				{"tactic": "data threads", "how_they_do_it": "weekly", "why_it_works": "saves", "how_to_copy": "start monday", "expected_result": "+200 followers"}
			]
		}`), nil)

	a := NewPeerInsightAugmenter(social, llm)
	insights, posts := a.Augment(context.Background(), subjectProfile(5000), testPeer(), newTestTracker())
	require.NotNil(t, insights)
	assert.Equal(t, []string{"posts daily charts"}, insights.Characteristics)
	require.Len(t, insights.Differences, 1)
	assert.Equal(t, "Visuals", insights.Differences[0].Category)
	require.Len(t, insights.Tactics, 1)
	assert.Len(t, posts, 3)
}

func TestAugment_NoPostsDegradesToNumericBullets(t *testing.T) {
	social := new(mockSocialClient)
	llm := new(mockCompletionClient)
	social.On("GetUserTweets", mock.Anything, "peer", 10).Return([]xapi.Tweet{}, nil)

	a := NewPeerInsightAugmenter(social, llm)
	insights, posts := a.Augment(context.Background(), subjectProfile(5000), testPeer(), newTestTracker())
	require.NotNil(t, insights)
	require.Len(t, insights.Characteristics, 3)
	assert.Equal(t, "Growing at 4.2% per month", insights.Characteristics[0])
	assert.Equal(t, "Has 6,000 followers", insights.Characteristics[1])
	assert.Equal(t, "Posts 7x per week", insights.Characteristics[2])
	assert.Empty(t, insights.Differences)
	assert.Empty(t, insights.Tactics)
	assert.Nil(t, posts)
	llm.AssertNotCalled(t, "CompleteJSON", mock.Anything, mock.Anything)
}

func TestAugment_FetchFailureDegradesToNumericBullets(t *testing.T) {
	social := new(mockSocialClient)
	llm := new(mockCompletionClient)
	social.On("GetUserTweets", mock.Anything, "peer", 10).Return(nil, assert.AnError)

	a := NewPeerInsightAugmenter(social, llm)
	insights, posts := a.Augment(context.Background(), subjectProfile(5000), testPeer(), newTestTracker())
	require.NotNil(t, insights)
	assert.Len(t, insights.Characteristics, 3)
	assert.Nil(t, posts)
}

func TestAugment_CompletionFailureReturnsEmptyLists(t *testing.T) {
	social := new(mockSocialClient)
	llm := new(mockCompletionClient)
	social.On("GetUserTweets", mock.Anything, "peer", 10).Return(recentTweets(4), nil)
	llm.On("CompleteJSON", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	a := NewPeerInsightAugmenter(social, llm)
	insights, posts := a.Augment(context.Background(), subjectProfile(5000), testPeer(), newTestTracker())
	require.NotNil(t, insights)
	assert.Empty(t, insights.Characteristics)
	assert.Empty(t, insights.Differences)
	assert.Empty(t, insights.Tactics)
	assert.Len(t, posts, 3)
}

func TestAugment_SamplePostsCappedAtThree(t *testing.T) {
	social := new(mockSocialClient)
	llm := new(mockCompletionClient)
	tweets := recentTweets(8)
	social.On("GetUserTweets", mock.Anything, "peer", 10).Return(tweets, nil)
	llm.On("CompleteJSON", mock.Anything, mock.Anything).
		Return(jsonResponse(`{"unique_characteristics": []}`), nil)

	a := NewPeerInsightAugmenter(social, llm)
	_, posts := a.Augment(context.Background(), subjectProfile(5000), testPeer(), newTestTracker())
	require.Len(t, posts, 3)
	assert.Equal(t, tweets[0].ID, posts[0].ID)
	assert.Equal(t, tweets[0].Text, posts[0].Text)
}

func TestAugment_PromptCapsPostsAtFive(t *testing.T) {
	social := new(mockSocialClient)
	llm := new(mockCompletionClient)
	social.On("GetUserTweets", mock.Anything, "peer", 10).Return(recentTweets(9), nil)

	var captured string
	llm.On("CompleteJSON", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = promptOf(args) }).
		Return(jsonResponse(`{"unique_characteristics": []}`), nil)

	a := NewPeerInsightAugmenter(social, llm)
	a.Augment(context.Background(), subjectProfile(5000), testPeer(), newTestTracker())
	assert.Contains(t, captured, "Post 5")
	assert.NotContains(t, captured, "Post 6")
}
