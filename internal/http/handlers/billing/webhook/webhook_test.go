package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bunyanhq/billing/internal/models"
	"github.com/bunyanhq/billing/internal/services/payment"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) HandleWebhook(ctx context.Context, body []byte, signature string) (*payment.WebhookResult, error) {
	args := m.Called(ctx, body, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestWebhook(t *testing.T) {
	body := `{"payment_status":"CAPTURED","track_id":"track-1"}`

	tests := []struct {
		name         string
		signature    string
		setupMocks   func(*MockService)
		expectedCode int
	}{
		{
			name:      "captured settles",
			signature: "good-sig",
			setupMocks: func(s *MockService) {
				s.On("HandleWebhook", mock.Anything, []byte(body), "good-sig").
					Return(&payment.WebhookResult{SessionID: "sess-1", Status: models.SessionSucceeded}, nil).Once()
			},
			expectedCode: http.StatusOK,
		},
		{
			name:      "replay acknowledged",
			signature: "good-sig",
			setupMocks: func(s *MockService) {
				s.On("HandleWebhook", mock.Anything, []byte(body), "good-sig").
					Return(&payment.WebhookResult{SessionID: "sess-1", Status: models.SessionSucceeded, Duplicate: true}, nil).Once()
			},
			expectedCode: http.StatusOK,
		},
		{
			name:      "bad signature",
			signature: "forged",
			setupMocks: func(s *MockService) {
				s.On("HandleWebhook", mock.Anything, []byte(body), "forged").
					Return(nil, payment.ErrInvalidSignature).Once()
			},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:      "unknown session",
			signature: "good-sig",
			setupMocks: func(s *MockService) {
				s.On("HandleWebhook", mock.Anything, []byte(body), "good-sig").
					Return(nil, payment.ErrSessionNotFound).Once()
			},
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			handler := New(newNoopLogger(), service)

			tt.setupMocks(service)

			req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook/upayments", strings.NewReader(body))
			req.Header.Set(SignatureHeader, tt.signature)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedCode, rec.Code)
			service.AssertExpectations(t)
		})
	}
}
