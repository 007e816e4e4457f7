package cli

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mock_cli "github.com/at-ishikawa/cardreview/internal/mocks/cli"
)

func TestInteractiveCLI_Run(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*mock_cli.MockSession)
		cancelAfter time.Duration
		wantErr     bool
	}{
		{
			name: "Session returns error",
			setupMock: func(mockSession *mock_cli.MockSession) {
				mockSession.EXPECT().
					Session(gomock.Any()).
					Return(errors.New("mock session error")).
					Times(1)
			},
			wantErr: true,
		},
		{
			name: "Session ends after two cards",
			setupMock: func(mockSession *mock_cli.MockSession) {
				gomock.InOrder(
					mockSession.EXPECT().Session(gomock.Any()).Return(nil).Times(2),
					mockSession.EXPECT().Session(gomock.Any()).Return(errEnd),
				)
			},
			wantErr: false,
		},
		{
			name: "Context cancelled before first session",
			setupMock: func(mockSession *mock_cli.MockSession) {
				// May or may not be called depending on timing
				mockSession.EXPECT().
					Session(gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			cancelAfter: 1 * time.Millisecond,
			wantErr:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockSession := mock_cli.NewMockSession(ctrl)
			tt.setupMock(mockSession)

			cli := newInteractiveCLI(nil, io.Discard)

			ctx := context.Background()
			if tt.cancelAfter > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.cancelAfter)
				defer cancel()
			}

			err := cli.Run(ctx, mockSession)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
