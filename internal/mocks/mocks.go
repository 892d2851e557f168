package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"teams-chat/internal/auth"
	"teams-chat/internal/files"
	"teams-chat/internal/models"
	"teams-chat/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conv models.Conversation, readerID int, ids []int) ([]int, error) {
	args := m.Called(ctx, conv, readerID, ids)
	var updated []int
	if val := args.Get(0); val != nil {
		updated = val.([]int)
	}
	return updated, args.Error(1)
}

type ProjectRepositoryMock struct {
	mock.Mock
}

func (m *ProjectRepositoryMock) GetProject(ctx context.Context, projectID int) (models.Project, error) {
	args := m.Called(ctx, projectID)
	var project models.Project
	if val := args.Get(0); val != nil {
		project = val.(models.Project)
	}
	return project, args.Error(1)
}

func (m *ProjectRepositoryMock) IsMember(ctx context.Context, projectID int, userID int) (bool, error) {
	args := m.Called(ctx, projectID, userID)
	return args.Bool(0), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Exists(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) IsBlocked(ctx context.Context, userA, userB int) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

type PresenceRepositoryMock struct {
	mock.Mock
}

func (m *PresenceRepositoryMock) SetOnline(ctx context.Context, userID int, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) GetProfile(ctx context.Context, userID int) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var profile models.UserProfile
	if val := args.Get(0); val != nil {
		profile = val.(models.UserProfile)
	}
	return profile, args.Error(1)
}

type MeetingRepositoryMock struct {
	mock.Mock
}

func (m *MeetingRepositoryMock) GrantInvitation(ctx context.Context, meetingID string, userID int) (bool, error) {
	args := m.Called(ctx, meetingID, userID)
	return args.Bool(0), args.Error(1)
}

type FileStoreMock struct {
	mock.Mock
}

func (m *FileStoreMock) Save(ctx context.Context, a files.Attachment) (files.Attachment, error) {
	args := m.Called(ctx, a)
	var saved files.Attachment
	if val := args.Get(0); val != nil {
		saved = val.(files.Attachment)
	}
	return saved, args.Error(1)
}

func (m *FileStoreMock) Get(ctx context.Context, id string) (files.Attachment, error) {
	args := m.Called(ctx, id)
	var att files.Attachment
	if val := args.Get(0); val != nil {
		att = val.(files.Attachment)
	}
	return att, args.Error(1)
}

func (m *FileStoreMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *FileStoreMock) URL(id string) string {
	args := m.Called(id)
	return args.String(0)
}

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var id auth.Identity
	if val := args.Get(0); val != nil {
		id = val.(auth.Identity)
	}
	return id, args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ProjectRepository = (*ProjectRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.PresenceRepository = (*PresenceRepositoryMock)(nil)
var _ repositories.MeetingRepository = (*MeetingRepositoryMock)(nil)
var _ files.Store = (*FileStoreMock)(nil)
var _ auth.Authenticator = (*AuthenticatorMock)(nil)

// PublisherMock stands in for the audit broker publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}
