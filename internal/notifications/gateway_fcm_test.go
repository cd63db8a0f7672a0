package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	firebase "firebase.google.com/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/eternisai/group-notifier/internal/logger"
)

// fcmTransport answers every FCM v1 send with a canned error response.
type fcmTransport struct {
	status int
	body   string
}

func (t fcmTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
	return &http.Response{
		StatusCode: t.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

func fcmError(httpStatus int, status, errorCode string) fcmTransport {
	return fcmTransport{
		status: httpStatus,
		body: fmt.Sprintf(`{"error":{"code":%d,"message":"%s","status":"%s",`+
			`"details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"%s"}]}}`,
			httpStatus, errorCode, status, errorCode),
	}
}

func newStubbedGateway(t *testing.T, rt http.RoundTripper) *Gateway {
	t.Helper()

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: "demo-project"},
		option.WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	client, err := app.Messaging(ctx)
	require.NoError(t, err)

	return NewGateway(client, logger.Discard(), true)
}

func TestSendMulticastClassifiesFCMErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport fcmTransport
		want      FailureReason
		permanent bool
	}{
		{
			name:      "unregistered token",
			transport: fcmError(http.StatusNotFound, "NOT_FOUND", "UNREGISTERED"),
			want:      ReasonUnregistered,
			permanent: true,
		},
		{
			name:      "malformed token",
			transport: fcmError(http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_ARGUMENT"),
			want:      ReasonInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newStubbedGateway(t, tt.transport)

			outcomes, err := gw.SendMulticast(context.Background(), NewMatch("g1"), []string{"tokA"})
			require.NoError(t, err)
			require.Len(t, outcomes, 1)

			assert.False(t, outcomes[0].Success)
			assert.Equal(t, "tokA", outcomes[0].Token)
			assert.Equal(t, tt.want, outcomes[0].Reason)
			assert.Equal(t, tt.permanent, outcomes[0].Permanent())
		})
	}
}
