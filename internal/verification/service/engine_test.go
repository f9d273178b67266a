package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/verification/models"
	"gatekeeper/internal/verification/service/mocks"
	"gatekeeper/internal/verification/timers/timertest"
	"gatekeeper/internal/verification/token"
	"gatekeeper/pkg/platform/sentinel"
)

// =============================================================================
// Engine Failure Policy Suite
// =============================================================================
// Justification: collaborator failures must be absorbed according to a fixed
// policy (reads fail closed, writes fail logged, gateway fails soft). Mocks pin
// down exactly which calls happen after each failure.

type EngineSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	gateway   *mocks.MockMembershipGateway
	notifier  *mocks.MockNotifier
	publisher *mocks.MockAuditPublisher
	clock     *timertest.Clock
	codec     *token.Codec
	engine    *Engine
	ctx       context.Context
	key       models.Key
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.gateway = mocks.NewMockMembershipGateway(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.clock = timertest.NewClock(time.Unix(1_700_000_000, 0))
	s.ctx = context.Background()
	s.key = models.NewKey(chatID, 42)

	var err error
	s.codec, err = token.NewCodec([]byte("suite"))
	s.Require().NoError(err)

	s.engine, err = New(s.store, s.gateway, s.notifier,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.publisher),
		WithClock(s.clock.Now),
		WithAfterFunc(s.clock.AfterFunc),
		WithTokenCodec(s.codec),
	)
	s.Require().NoError(err)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (s *EngineSuite) TearDownTest() {
	s.engine.Close()
	s.ctrl.Finish()
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *EngineSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.gateway, s.notifier)
		s.Require().Error(err)
		s.Contains(err.Error(), "store is required")
	})

	s.Run("nil gateway returns error", func() {
		_, err := New(s.store, nil, s.notifier)
		s.Require().Error(err)
		s.Contains(err.Error(), "membership gateway is required")
	})

	s.Run("nil notifier returns error", func() {
		_, err := New(s.store, s.gateway, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "notifier is required")
	})

	s.Run("defaults", func() {
		e, err := New(s.store, s.gateway, s.notifier)
		s.Require().NoError(err)
		s.Equal(DefaultGracePeriod, e.gracePeriod)
		s.Equal(DefaultCallTimeout, e.callTimeout)
		s.NotNil(e.codec)
		s.NotNil(e.tracer)
	})

	s.Run("options apply", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		e, err := New(s.store, s.gateway, s.notifier,
			WithLogger(logger),
			WithGracePeriod(time.Minute),
			WithCallTimeout(time.Second),
			WithAuditPublisher(s.publisher),
		)
		s.Require().NoError(err)
		s.Equal(logger, e.logger)
		s.Equal(time.Minute, e.gracePeriod)
		s.Equal(time.Second, e.callTimeout)
		s.Equal(s.publisher, e.auditPublisher)
	})
}

// =============================================================================
// Join
// =============================================================================

func (s *EngineSuite) TestOnMemberJoined() {
	s.Run("read failure restricts without writing", func() {
		s.store.EXPECT().Get(gomock.Any(), s.key).Return(nil, sentinel.ErrUnavailable)
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.RoleMember, nil)
		s.gateway.EXPECT().Restrict(gomock.Any(), chatID, int64(42), false).Return(nil)

		s.Equal(models.OutcomeRestricted, s.engine.OnMemberJoined(s.ctx, group, member(42)))
	})

	s.Run("write failure does not block the restriction", func() {
		s.store.EXPECT().Get(gomock.Any(), s.key).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Upsert(gomock.Any(), models.NewUnverifiedRecord(s.key, s.clock.Now())).Return(sentinel.ErrUnavailable)
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.RoleMember, nil)
		s.gateway.EXPECT().Restrict(gomock.Any(), chatID, int64(42), false).Return(nil)

		s.Equal(models.OutcomeRestricted, s.engine.OnMemberJoined(s.ctx, group, member(42)))
	})

	s.Run("role lookup failure skips the restriction", func() {
		s.store.EXPECT().Get(gomock.Any(), s.key).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.Role(""), sentinel.ErrUnavailable)

		s.Equal(models.OutcomeTracked, s.engine.OnMemberJoined(s.ctx, group, member(42)))
	})

	s.Run("restriction failure is absorbed", func() {
		s.store.EXPECT().Get(gomock.Any(), s.key).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.RoleMember, nil)
		s.gateway.EXPECT().Restrict(gomock.Any(), chatID, int64(42), false).Return(sentinel.ErrPermissionDenied)

		s.Equal(models.OutcomeTracked, s.engine.OnMemberJoined(s.ctx, group, member(42)))
	})
}

// =============================================================================
// Message
// =============================================================================

func (s *EngineSuite) TestOnIncomingMessage() {
	s.Run("role lookup failure leaves the message unchallenged", func() {
		s.store.EXPECT().Get(gomock.Any(), s.key).Return(&models.VerificationRecord{ChatID: chatID, UserID: 42}, nil)
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.Role(""), sentinel.ErrUnavailable)

		s.Equal(models.OutcomeFailed, s.engine.OnIncomingMessage(s.ctx, textMessage(42, 7)))
		s.False(s.engine.HasPending(s.key))
	})

	s.Run("lazy record creation failure still challenges", func() {
		s.store.EXPECT().Get(gomock.Any(), s.key).Return(nil, sentinel.ErrNotFound)
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.RoleMember, nil)
		s.notifier.EXPECT().SendChallenge(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msg models.ChallengeMessage) (int, error) {
				key, err := s.codec.Decode(msg.Token)
				s.Require().NoError(err)
				s.Equal(s.key, key)
				s.Equal("I'm not a robot", msg.ButtonText)
				return 500, nil
			})

		s.Equal(models.OutcomeChallenged, s.engine.OnIncomingMessage(s.ctx, textMessage(42, 7)))
		pending, ok := s.engine.timers.Pending(s.key)
		s.Require().True(ok)
		s.Equal(500, pending.ChallengeMessageID)
		s.Equal(7, pending.OriginalMessageID)
		s.engine.timers.Cancel(s.key)
	})
}

// =============================================================================
// Response
// =============================================================================

func (s *EngineSuite) TestOnChallengeResponse() {
	tok, err := s.codec.Encode(s.key)
	s.Require().NoError(err)
	resp := models.ChallengeResponse{CallbackID: "cb", From: member(42), ChatID: chatID, MessageID: 500, Token: tok}

	s.Run("store write failure answers with retry and stops", func() {
		s.store.EXPECT().SetVerified(gomock.Any(), s.key, s.clock.Now()).Return(sentinel.ErrUnavailable)
		s.notifier.EXPECT().AnswerChallenge(gomock.Any(), "cb", DefaultTexts().Retry).Return(nil)

		s.Equal(models.OutcomeFailed, s.engine.OnChallengeResponse(s.ctx, resp))
	})

	s.Run("notifier and gateway failures after the write are absorbed", func() {
		s.store.EXPECT().SetVerified(gomock.Any(), s.key, gomock.Any()).Return(nil)
		s.notifier.EXPECT().AnswerChallenge(gomock.Any(), "cb", DefaultTexts().Passed).Return(sentinel.ErrUnavailable)
		s.notifier.EXPECT().DeleteMessage(gomock.Any(), chatID, 500).Return(sentinel.ErrNotFound)
		s.gateway.EXPECT().GetRole(gomock.Any(), chatID, int64(42)).Return(models.Role(""), sentinel.ErrUnavailable)
		s.gateway.EXPECT().Restrict(gomock.Any(), chatID, int64(42), true).Return(sentinel.ErrPermissionDenied)

		s.Equal(models.OutcomePassed, s.engine.OnChallengeResponse(s.ctx, resp))
	})

	s.Run("rejection emits an audit event naming the presser", func() {
		publisher := mocks.NewMockAuditPublisher(s.ctrl)
		e, err := New(s.store, s.gateway, s.notifier, WithAuditPublisher(publisher), WithTokenCodec(s.codec))
		s.Require().NoError(err)
		defer e.Close()

		publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev audit.Event) error {
			s.Equal(string(audit.ActionChallengeRejected), ev.Action)
			s.Equal("7", ev.ActorID)
			s.Equal("foreign_responder", ev.Reason)
			s.Equal(int64(42), ev.UserID)
			return nil
		})
		s.notifier.EXPECT().AnswerChallenge(gomock.Any(), "cb", DefaultTexts().NotYourButton).Return(nil)

		foreign := resp
		foreign.From = member(7)
		s.Equal(models.OutcomeRejected, e.OnChallengeResponse(s.ctx, foreign))
	})
}

// =============================================================================
// Expiry
// =============================================================================

func (s *EngineSuite) TestExpiryActionsAreIndependent() {
	pending := models.PendingChallenge{Key: s.key, OriginalMessageID: 7, ChallengeMessageID: 500}

	s.store.EXPECT().Get(gomock.Any(), s.key).Return(&models.VerificationRecord{ChatID: chatID, UserID: 42}, nil)
	s.gateway.EXPECT().Restrict(gomock.Any(), chatID, int64(42), false).Return(sentinel.ErrPermissionDenied)
	s.notifier.EXPECT().DeleteMessage(gomock.Any(), chatID, 7).Return(sentinel.ErrNotFound)
	s.notifier.EXPECT().DeleteMessage(gomock.Any(), chatID, 500).Return(nil)

	s.Equal(models.OutcomeRestricted, s.engine.expire(s.ctx, pending))
}

func (s *EngineSuite) TestExpiryAfterVerificationIsNoop() {
	pending := models.PendingChallenge{Key: s.key, OriginalMessageID: 7, ChallengeMessageID: 500}
	s.store.EXPECT().Get(gomock.Any(), s.key).Return(&models.VerificationRecord{ChatID: chatID, UserID: 42, Verified: true}, nil)

	s.Equal(models.OutcomeAlreadyVerified, s.engine.expire(s.ctx, pending))
}

// =============================================================================
// Forget
// =============================================================================

func (s *EngineSuite) TestForgetPropagatesStoreError() {
	s.store.EXPECT().Delete(gomock.Any(), s.key).Return(sentinel.ErrUnavailable)

	outcome, err := s.engine.Forget(WithActor(s.ctx, "ops"), s.key)
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(models.OutcomeFailed, outcome)
}

func TestLoadTexts(t *testing.T) {
	t.Run("empty path keeps defaults", func(t *testing.T) {
		texts, err := LoadTexts("")
		require.NoError(t, err)
		assert.Equal(t, DefaultTexts(), texts)
	})

	t.Run("overrides merge over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "texts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("greeting: \"Привет, @{username}!\"\nbutton: \"Я не робот\"\n"), 0o600))

		texts, err := LoadTexts(path)
		require.NoError(t, err)
		assert.Equal(t, "Я не робот", texts.Button)
		assert.Equal(t, "Привет, @anna!", texts.greeting("anna"))
		assert.Equal(t, DefaultTexts().Passed, texts.Passed)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "texts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("greeting: [unterminated"), 0o600))
		_, err := LoadTexts(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTexts(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
