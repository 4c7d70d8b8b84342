package auth

import (
	"context"
	"errors"
	"net/url"
	"time"

	"gatekeeper/account"
	"gatekeeper/bizerror"
	"gatekeeper/infra/metrics"
	"gatekeeper/mail"
	"gatekeeper/security"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventForgotPassword = "forgot_password"
	EventResetPassword  = "reset_password"
	EventChangePassword = "change_password"
)

// VerifyPasswordFunc checks a plain password against a stored digest.
var VerifyPasswordFunc = security.VerifyPassword

type Service struct {
	Codec       *security.TokenCodec
	Mailer      mail.Mailer
	FrontendURL string

	Now func() time.Time
}

func NewService(codec *security.TokenCodec, mailer mail.Mailer, frontendURL string) *Service {
	return &Service{Codec: codec, Mailer: mailer, FrontendURL: frontendURL, Now: time.Now}
}

func (s *Service) Register(ctx context.Context, r Registration) (grant *TokenGrant, err error) {
	defer recordOutcome(EventRegister, &err)

	if ok, reason := security.ActivePasswordPolicy.Validate(r.Password); !ok {
		return nil, &bizerror.ErrWeakPassword{Reason: reason}
	}
	if taken, err := account.IsEmailTakenFunc(ctx, r.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, bizerror.ErrEmailTaken
	}
	if taken, err := account.IsUsernameTakenFunc(ctx, r.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, bizerror.ErrUsernameTaken
	}

	digest, err := security.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	user := &account.User{Email: r.Email, Username: r.Username, HashedPassword: digest}
	// a concurrent registration may still win the race, the unique index decides
	if err := account.InsertUserFunc(ctx, user); err != nil {
		return nil, err
	}
	logrus.WithContext(ctx).WithField("userId", user.ID).Info("user registered")
	return s.grant(user.ID)
}

// Login reports bizerror.ErrInvalidCredentials for an unknown user and for a
// wrong password alike.
func (s *Service) Login(ctx context.Context, c Credentials) (grant *TokenGrant, err error) {
	defer recordOutcome(EventLogin, &err)

	principal, err := account.FindPrincipalByUsernameFunc(ctx, c.Username)
	if errors.Is(err, bizerror.ErrUserNotFound) {
		principal, err = account.FindPrincipalByEmailFunc(ctx, c.Username)
	}
	if errors.Is(err, bizerror.ErrUserNotFound) {
		// same bcrypt work as a wrong password
		VerifyPasswordFunc(c.Password, security.DummyDigest())
		return nil, bizerror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !VerifyPasswordFunc(c.Password, principal.HashedPassword) {
		return nil, bizerror.ErrInvalidCredentials
	}
	return s.grant(principal.ID)
}

// ForgotPassword mails a reset link when email belongs to a user. It never
// fails, so callers learn nothing about which emails are registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	entry := logrus.WithContext(ctx).WithField("event", EventForgotPassword)

	principal, err := account.FindPrincipalByEmailFunc(ctx, email)
	if err != nil {
		if !errors.Is(err, bizerror.ErrUserNotFound) {
			entry.WithError(err).Error("failed to look up user")
			metrics.RecordAuthEvent(EventForgotPassword, metrics.OutcomeFailure)
			return
		}
		metrics.RecordAuthEvent(EventForgotPassword, metrics.OutcomeSuccess)
		return
	}

	token, err := s.Codec.MintReset(principal.Email, s.Now())
	if err != nil {
		entry.WithError(err).Error("failed to mint reset token")
		metrics.RecordAuthEvent(EventForgotPassword, metrics.OutcomeFailure)
		return
	}
	err = s.Mailer.Send(ctx, mail.Message{
		Recipients:   []string{principal.Email},
		TemplateName: mail.TemplatePasswordReset,
		Variables: map[string]interface{}{
			"reset_link":     s.FrontendURL + "/reset-password?token=" + url.QueryEscape(token),
			"expiry_minutes": int(s.Codec.ResetTTL() / time.Minute),
		},
	})
	if err != nil {
		entry.WithError(err).WithField("userId", principal.ID).Error("failed to send password reset email")
		metrics.RecordAuthEvent(EventForgotPassword, metrics.OutcomeFailure)
		return
	}
	metrics.RecordAuthEvent(EventForgotPassword, metrics.OutcomeSuccess)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer recordOutcome(EventResetPassword, &err)

	email, err := s.Codec.Verify(token, security.PurposeReset, s.Now())
	if err != nil {
		return bizerror.ErrInvalidOrExpiredToken
	}
	principal, err := account.FindPrincipalByEmailFunc(ctx, email)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, principal.ID, newPassword); err != nil {
		return err
	}

	s.notify(ctx, principal, mail.TemplatePasswordResetSuccess, map[string]interface{}{})
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, id types.ID, oldPassword, newPassword string) (err error) {
	defer recordOutcome(EventChangePassword, &err)

	principal, err := account.FindPrincipalByIDFunc(ctx, id)
	if err != nil {
		return err
	}
	if !VerifyPasswordFunc(oldPassword, principal.HashedPassword) {
		return bizerror.ErrIncorrectOldPassword
	}
	if err := s.setPassword(ctx, principal.ID, newPassword); err != nil {
		return err
	}

	s.notify(ctx, principal, mail.TemplatePasswordChangeSuccess, map[string]interface{}{"username": principal.Username})
	return nil
}

func (s *Service) setPassword(ctx context.Context, id types.ID, plain string) error {
	if ok, reason := security.ActivePasswordPolicy.Validate(plain); !ok {
		return &bizerror.ErrWeakPassword{Reason: reason}
	}
	digest, err := security.HashPassword(plain)
	if err != nil {
		return err
	}
	return account.UpdateCredentialFunc(ctx, id, digest)
}

// notify is best effort, the credential change it reports is already committed.
func (s *Service) notify(ctx context.Context, principal *account.Principal, template string, variables map[string]interface{}) {
	err := s.Mailer.Send(ctx, mail.Message{Recipients: []string{principal.Email}, TemplateName: template, Variables: variables})
	if err != nil {
		logrus.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"userId": principal.ID, "template": template,
		}).Warn("notification email not sent")
	}
}

func (s *Service) grant(id types.ID) (*TokenGrant, error) {
	token, err := s.Codec.MintAccess(id.String(), s.Now())
	if err != nil {
		return nil, err
	}
	return &TokenGrant{AccessToken: token, TokenType: TokenTypeBearer}, nil
}

func recordOutcome(event string, err *error) {
	if *err != nil {
		metrics.RecordAuthEvent(event, metrics.OutcomeFailure)
	} else {
		metrics.RecordAuthEvent(event, metrics.OutcomeSuccess)
	}
}
