package narrative

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/resilience"
	"github.com/sells-group/agri-esg/pkg/anthropic"
	"github.com/sells-group/agri-esg/pkg/anthropic/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func scored(key string, esg float64) model.ScoredRecord {
	return model.ScoredRecord{
		AggregateRecord: model.AggregateRecord{
			Key: model.GroupKey{Columns: []string{"farm_id"}, Values: []string{key}},
			Metrics: model.Metrics{
				model.KPIEmissionsPerHa: 512.34,
				model.KPIYieldPerHa:     7.25,
				model.KPIFemaleShare:    0.25,
			},
		},
		EScore: 40, SScore: 55, GScore: 50, ESGScore: esg,
	}
}

func testOptions() Options {
	return Options{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 300,
		Timeout:   time.Second,
		Retry:     resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}

func TestAdvise_Success(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 300 &&
			req.System != "" &&
			len(req.Messages) == 1
	})).Return(reply("Here are some tips:\n1. Try using 10 bags less fertilizer next month.\n- Keep having your morning safety meetings.\n\n• Plant clover between rows to feed the soil.\n* Fix leaking water pipes before summer comes.\n5. Another tip that should be dropped entirely."), nil).Once()

	adv := NewAdvisor(client, testOptions()).Advise(context.Background(), scored("F1", 48.6))
	assert.False(t, adv.Degraded)
	assert.Equal(t, "F1", adv.Key)
	assert.Equal(t, []string{
		"Try using 10 bags less fertilizer next month.",
		"Keep having your morning safety meetings.",
		"Plant clover between rows to feed the soil.",
		"Fix leaking water pipes before summer comes.",
	}, adv.Lines)
}

func TestAdvise_NoClient(t *testing.T) {
	adv := NewAdvisor(nil, testOptions()).Advise(context.Background(), scored("F1", 50))
	assert.True(t, adv.Degraded)
	assert.Equal(t, "no api key", adv.Reason)
	assert.Contains(t, adv.Lines[0], "API key")
}

func TestAdvise_APIErrorFallsBack(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid x-api-key")).Once()

	adv := NewAdvisor(client, testOptions()).Advise(context.Background(), scored("F1", 72.4))
	assert.True(t, adv.Degraded)
	assert.Equal(t, Fallback(scored("F1", 72.4)), adv.Lines)
	assert.Contains(t, adv.Lines[1], "72/100")
}

func TestAdvise_TransientErrorRetried(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply("Spread manure in spring instead of buying extra bags."), nil).Once()

	adv := NewAdvisor(client, testOptions()).Advise(context.Background(), scored("F1", 50))
	assert.False(t, adv.Degraded)
	require.Len(t, adv.Lines, 1)
}

func TestAdvise_EmptyResponse(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("ok\n\n- short"), nil).Once()

	adv := NewAdvisor(client, testOptions()).Advise(context.Background(), scored("F1", 50))
	assert.True(t, adv.Degraded)
	assert.Equal(t, "empty response", adv.Reason)
}

func TestAdvise_BreakerStopsCalls(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("bad request")).Times(2)

	opts := testOptions()
	opts.BreakerThreshold = 2
	opts.BreakerCooldown = time.Hour
	a := NewAdvisor(client, opts)

	out := a.AdviseAll(context.Background(), []model.ScoredRecord{scored("A", 1), scored("B", 2), scored("C", 3)})
	require.Len(t, out, 3)
	for _, adv := range out {
		assert.True(t, adv.Degraded)
	}
	assert.Contains(t, out[2].Reason, "circuit breaker is open")
}

func TestAdvise_Timeout(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).Once()

	opts := testOptions()
	opts.Timeout = 10 * time.Millisecond
	adv := NewAdvisor(client, opts).Advise(context.Background(), scored("F1", 50))
	assert.True(t, adv.Degraded)
}

func TestPrompt(t *testing.T) {
	p := Prompt(scored("F1", 48.6))
	assert.Contains(t, p, "Overall Score: 49/100")
	assert.Contains(t, p, "Pollution: 512.3 kg per hectare")
	assert.Contains(t, p, "Crop Yield: 7.2 tonnes per hectare")
	assert.Contains(t, p, "Women Workers: 25%")
	assert.Contains(t, p, "Accidents: not recorded per 100 workers")
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"short lines dropped", "Yes.\nTwenty chars exactly", nil},
		{"numbered", "1) Use less diesel on short field trips.\n2. Share tractors with the neighbour farm.", []string{
			"Use less diesel on short field trips.", "Share tractors with the neighbour farm.",
		}},
		{"bullets", "- Plant clover between the wheat rows.\n• Fix the leaking water trough first.\n* Walk the hedges before cutting them.", []string{
			"Plant clover between the wheat rows.", "Fix the leaking water trough first.", "Walk the hedges before cutting them.",
		}},
		{"leading quantities kept", "10 bags less fertiliser next month saves money.\n3. 2.5 tonnes more straw can go back on the field.\n2.5 hectares of cover crop would protect the soil.", []string{
			"10 bags less fertiliser next month saves money.",
			"2.5 tonnes more straw can go back on the field.",
			"2.5 hectares of cover crop would protect the soil.",
		}},
		{"capped at four", "aaaaaaaaaaaaaaaaaaaaa1\naaaaaaaaaaaaaaaaaaaaa2\naaaaaaaaaaaaaaaaaaaaa3\naaaaaaaaaaaaaaaaaaaaa4\naaaaaaaaaaaaaaaaaaaaa5", []string{
			"aaaaaaaaaaaaaaaaaaaaa1", "aaaaaaaaaaaaaaaaaaaaa2", "aaaaaaaaaaaaaaaaaaaaa3", "aaaaaaaaaaaaaaaaaaaaa4",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLines(tt.in))
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Anthropic.Model = "m"
	cfg.Anthropic.MaxTokens = 100
	cfg.Anthropic.RequestsPerMinute = 60
	cfg.Narrative.TimeoutSecs = 5
	cfg.Retry.MaxAttempts = 4

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "m", opts.Model)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 4, opts.Retry.MaxAttempts)
	assert.Equal(t, 60, opts.RequestsPerMinute)
}
