package membership

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) MembershipStatus(ctx context.Context, handle string, userID int64) (gateway.MemberStatus, error) {
	args := m.Called(ctx, handle, userID)
	return args.Get(0).(gateway.MemberStatus), args.Error(1)
}

func (m *mockGateway) SendMessage(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

func (m *mockGateway) DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (gateway.MessageRef, error) {
	args := m.Called(ctx, chatID, data, filename, caption)
	return args.Get(0).(gateway.MessageRef), args.Error(1)
}

func (m *mockGateway) DeleteMessage(ctx context.Context, ref gateway.MessageRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *mockGateway) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifier_Missing(t *testing.T) {
	ctx := context.Background()
	userID := int64(42)

	joined := domain.ChannelGateEntry{ChatID: "@joined"}
	left := domain.ChannelGateEntry{ChatID: "@left"}
	private := domain.ChannelGateEntry{Invite: "https://t.me/+secret"}
	failing := domain.ChannelGateEntry{ChatID: "@broken"}

	testCases := []struct {
		name            string
		channels        []domain.ChannelGateEntry
		setupMocks      func(gw *mockGateway)
		expectedMissing []string
		expectFailed    bool
	}{
		{
			name:            "no channels configured",
			channels:        nil,
			setupMocks:      func(gw *mockGateway) {},
			expectedMissing: nil,
		},
		{
			name:     "member of all channels",
			channels: []domain.ChannelGateEntry{joined},
			setupMocks: func(gw *mockGateway) {
				gw.On("MembershipStatus", mock.Anything, "@joined", userID).
					Return(gateway.StatusMember, nil).Once()
			},
			expectedMissing: nil,
		},
		{
			name:     "left and kicked are missing",
			channels: []domain.ChannelGateEntry{joined, left},
			setupMocks: func(gw *mockGateway) {
				gw.On("MembershipStatus", mock.Anything, "@joined", userID).
					Return(gateway.StatusKicked, nil).Once()
				gw.On("MembershipStatus", mock.Anything, "@left", userID).
					Return(gateway.StatusLeft, nil).Once()
			},
			expectedMissing: []string{"@joined", "@left"},
		},
		{
			name:            "unresolvable channel fails closed",
			channels:        []domain.ChannelGateEntry{private},
			setupMocks:      func(gw *mockGateway) {},
			expectedMissing: []string{"https://t.me/+secret"},
		},
		{
			name:     "lookup error counts missing and flags the pass",
			channels: []domain.ChannelGateEntry{failing, joined},
			setupMocks: func(gw *mockGateway) {
				gw.On("MembershipStatus", mock.Anything, "@broken", userID).
					Return(gateway.MemberStatus(""), errors.New("bot not in channel")).Once()
				gw.On("MembershipStatus", mock.Anything, "@joined", userID).
					Return(gateway.StatusMember, nil).Once()
			},
			expectedMissing: []string{"@broken"},
			expectFailed:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &mockGateway{}
			tc.setupMocks(gw)

			v := NewVerifier(gw, testLogger())
			missing, failed := v.Missing(ctx, userID, tc.channels)

			labels := make([]string, 0, len(missing))
			for _, ch := range missing {
				labels = append(labels, ch.Label())
			}

			assert.Equal(t, tc.expectedMissing, labelsOrNil(labels))
			assert.Equal(t, tc.expectFailed, failed)
			gw.AssertExpectations(t)
		})
	}
}

func labelsOrNil(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	return labels
}
