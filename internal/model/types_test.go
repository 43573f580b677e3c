package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, StatusRateLimited.Retryable())
	assert.True(t, StatusTimeout.Retryable())
	assert.False(t, StatusAuthError.Retryable())
	assert.False(t, StatusInvalidResponse.Retryable())
	assert.False(t, StatusSuccess.Retryable())
}

func TestParseSentiment(t *testing.T) {
	assert.Equal(t, SentimentPositive, ParseSentiment("positive"))
	assert.Equal(t, SentimentNegative, ParseSentiment("negative"))
	assert.Equal(t, SentimentNeutral, ParseSentiment("neutral"))
	assert.Equal(t, SentimentMixed, ParseSentiment("mixed"))
	assert.Equal(t, SentimentMixed, ParseSentiment("optimistic"))
	assert.Equal(t, SentimentMixed, ParseSentiment(""))
}
