package testinfra

import (
	"context"
	"gatekeeper/mail"

	"github.com/stretchr/testify/mock"
)

// MockMailer records sent messages, expectations are set with On("Send", ...).
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
