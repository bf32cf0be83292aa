package fcm

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
)

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	if f.err != nil {
		return "", f.err
	}
	return "projects/test/messages/1", nil
}

var errGone = errors.New("requested entity was not found")

func testClient(m *fakeMessenger) *Client {
	c := newClient(m, zap.NewNop())
	c.stale = func(err error) bool { return errors.Is(err, errGone) }
	return c
}

func TestSend_BuildsMessage(t *testing.T) {
	m := &fakeMessenger{}
	c := testClient(m)

	err := c.Send(context.Background(), "tok", "An Nguyen", "sent you a request", map[string]string{"type": "connection_request"})
	require.NoError(t, err)

	require.Len(t, m.sent, 1)
	assert.Equal(t, "tok", m.sent[0].Token)
	assert.Equal(t, "An Nguyen", m.sent[0].Notification.Title)
	assert.Equal(t, "sent you a request", m.sent[0].Notification.Body)
	assert.Equal(t, "connection_request", m.sent[0].Data["type"])
	assert.Equal(t, "high", m.sent[0].Android.Priority)
}

func TestSend_EmptyTokenIsSkipped(t *testing.T) {
	m := &fakeMessenger{}
	require.NoError(t, testClient(m).Send(context.Background(), "", "t", "b", nil))
	assert.Empty(t, m.sent)
}

func TestSend_StaleTokenIsReported(t *testing.T) {
	c := testClient(&fakeMessenger{err: errGone})

	err := c.Send(context.Background(), "tok", "t", "b", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPushToken)
}

func TestSend_OtherErrorsPassThrough(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := testClient(&fakeMessenger{err: boom})

	err := c.Send(context.Background(), "tok", "t", "b", nil)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrInvalidPushToken)
}
