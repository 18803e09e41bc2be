package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-idv/internal/application/identity"
)

type fakePublisher struct {
	input *sns.PublishInput
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	return &sns.PublishOutput{}, f.err
}

func TestAlertPublisher_PublishesJSON(t *testing.T) {
	fp := &fakePublisher{}
	p := NewAlertPublisher(fp, "arn:aws:sns:us-east-1:000000000000:idv-alerts")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.Alert(context.Background(), identity.Alert{Gate: "face", Email: "pat@example.com", Reason: "thresholds", DetectedAt: at}))
	require.NotNil(t, fp.input)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:idv-alerts", *fp.input.TopicArn)

	var got identity.Alert
	require.NoError(t, json.Unmarshal([]byte(*fp.input.Message), &got))
	assert.Equal(t, "face", got.Gate)
	assert.True(t, got.DetectedAt.Equal(at))
}

func TestAlertPublisher_WrapsError(t *testing.T) {
	p := NewAlertPublisher(&fakePublisher{err: errors.New("throttled")}, "arn")
	err := p.Alert(context.Background(), identity.Alert{Gate: "face"})
	assert.ErrorContains(t, err, "sns publish")
}
