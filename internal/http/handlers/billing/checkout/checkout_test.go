package checkout

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

	"github.com/bunyanhq/billing/internal/http/middlewarectx"
	"github.com/bunyanhq/billing/internal/services/catalog"
	"github.com/bunyanhq/billing/internal/services/payment"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) StartCheckout(ctx context.Context, accountUID, tierID string) (*payment.CheckoutResult, error) {
	args := m.Called(ctx, accountUID, tierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newRequest(body, accountUID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", strings.NewReader(body))
	if accountUID != "" {
		ctx := context.WithValue(req.Context(), middlewarectx.AccountUID, accountUID)
		req = req.WithContext(ctx)
	}
	return req
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		accountUID   string
		setupMocks   func(*MockService)
		expectedCode int
	}{
		{
			name:       "success",
			body:       `{"tier_id":"pro"}`,
			accountUID: "acc-1",
			setupMocks: func(s *MockService) {
				s.On("StartCheckout", mock.Anything, "acc-1", "pro").
					Return(&payment.CheckoutResult{SessionID: "sess-1", RedirectURL: "https://pay.example/abc"}, nil).Once()
			},
			expectedCode: http.StatusOK,
		},
		{
			name:       "unknown tier",
			body:       `{"tier_id":"nope"}`,
			accountUID: "acc-1",
			setupMocks: func(s *MockService) {
				s.On("StartCheckout", mock.Anything, "acc-1", "nope").
					Return(nil, catalog.ErrTierNotFound).Once()
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:       "gateway unavailable",
			body:       `{"tier_id":"pro"}`,
			accountUID: "acc-1",
			setupMocks: func(s *MockService) {
				s.On("StartCheckout", mock.Anything, "acc-1", "pro").
					Return(nil, payment.ErrGateway).Once()
			},
			expectedCode: http.StatusBadGateway,
		},
		{
			name:         "bad json",
			body:         `{"tier_id":`,
			accountUID:   "acc-1",
			setupMocks:   func(s *MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "missing tier id",
			body:         `{}`,
			accountUID:   "acc-1",
			setupMocks:   func(s *MockService) {},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:         "no account in context",
			body:         `{"tier_id":"pro"}`,
			accountUID:   "",
			setupMocks:   func(s *MockService) {},
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			handler := New(newNoopLogger(), service)

			tt.setupMocks(service)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, newRequest(tt.body, tt.accountUID))

			assert.Equal(t, tt.expectedCode, rec.Code)
			service.AssertExpectations(t)
		})
	}
}
