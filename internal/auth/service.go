package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/dispatch"
)

const minPasswordLen = 6

// Service wires the code lifecycle to user accounts and to the message
// pipeline that delivers the codes.
type Service struct {
	Store  Store
	Codes  *Codes
	Mailer *dispatch.Ingestor
	Secret []byte

	// SMTPConfigured picks the delivery variant for code mail, mirroring
	// the admission path: direct SMTP when the process has credentials,
	// the shared provider key otherwise.
	SMTPConfigured bool
}

// RegisterRequest issues a signup code for a new account. The password hash
// and display name ride on the code record until verification materializes
// the user.
func (s *Service) RegisterRequest(ctx context.Context, email, name, password string) (string, error) {
	if verr := validateEmailPassword(email, password); verr != nil {
		return "", verr
	}
	email = NormalizeEmail(email)
	if _, err := s.Store.GetUser(ctx, email); err == nil {
		return "", core.ErrAlreadyRegistered
	} else if !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	pendingHash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	code, err := s.Codes.Issue(ctx, email, PurposeRegister, Pending{Name: name, PasswordHash: pendingHash})
	if err != nil {
		return "", err
	}
	return s.sendCode(ctx, email, "Your signup verification code", code)
}

// RegisterVerify consumes the code and creates the user exactly once.
func (s *Service) RegisterVerify(ctx context.Context, email, code string) error {
	if !core.ValidEmail(email) {
		return core.NewValidationError(map[string]string{"email": "invalid email"})
	}
	email = NormalizeEmail(email)
	pending, err := s.Codes.Verify(ctx, email, PurposeRegister, code)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.Store.CreateUser(ctx, User{
		Email:        email,
		Name:         pending.Name,
		PasswordHash: pending.PasswordHash,
		VerifiedAt:   &now,
	})
}

func (s *Service) LoginRequest(ctx context.Context, email string) (string, error) {
	if !core.ValidEmail(email) {
		return "", core.NewValidationError(map[string]string{"email": "invalid email"})
	}
	email = NormalizeEmail(email)
	if err := s.requireUser(ctx, email); err != nil {
		return "", err
	}
	code, err := s.Codes.Issue(ctx, email, PurposeLogin, Pending{})
	if err != nil {
		return "", err
	}
	return s.sendCode(ctx, email, "Your login code", code)
}

// LoginVerify trades a valid code for a bearer token.
func (s *Service) LoginVerify(ctx context.Context, email, code string) (string, error) {
	if !core.ValidEmail(email) {
		return "", core.NewValidationError(map[string]string{"email": "invalid email"})
	}
	email = NormalizeEmail(email)
	if _, err := s.Codes.Verify(ctx, email, PurposeLogin, code); err != nil {
		return "", err
	}
	return MintToken(email, s.Secret)
}

func (s *Service) ForgotRequest(ctx context.Context, email string) (string, error) {
	if !core.ValidEmail(email) {
		return "", core.NewValidationError(map[string]string{"email": "invalid email"})
	}
	email = NormalizeEmail(email)
	if err := s.requireUser(ctx, email); err != nil {
		return "", err
	}
	code, err := s.Codes.Issue(ctx, email, PurposeForgot, Pending{})
	if err != nil {
		return "", err
	}
	return s.sendCode(ctx, email, "Your password reset code", code)
}

// ForgotVerify overwrites the password on code match. The new password
// arrives only at verify time; nothing about it is stashed on the code.
func (s *Service) ForgotVerify(ctx context.Context, email, code, newPassword string) error {
	if verr := validateEmailPassword(email, newPassword); verr != nil {
		return verr
	}
	email = NormalizeEmail(email)
	if _, err := s.Codes.Verify(ctx, email, PurposeForgot, code); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.Store.SetPassword(ctx, email, hash)
}

func (s *Service) requireUser(ctx context.Context, email string) error {
	_, err := s.Store.GetUser(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrNotRegistered
	}
	return err
}

// sendCode dispatches the code through the normal message pipeline at high
// priority. The plaintext code exists only in this mail.
func (s *Service) sendCode(ctx context.Context, email, subject, code string) (string, error) {
	delivery := core.DeliverShared
	if s.SMTPConfigured {
		delivery = core.DeliverSMTP
	}
	minutes := int(s.Codes.TTL.Minutes())
	return s.Mailer.EnqueueJob(ctx, core.MailJob{
		To:       core.Recipients{email},
		Subject:  subject,
		Text:     fmt.Sprintf("Your code is %s. It expires in %d minutes.", code, minutes),
		Priority: core.PriorityHigh,
		Delivery: delivery,
	})
}

func validateEmailPassword(email, password string) error {
	details := map[string]string{}
	if !core.ValidEmail(email) {
		details["email"] = "invalid email"
	}
	if len(password) < minPasswordLen {
		details["password"] = fmt.Sprintf("at least %d characters required", minPasswordLen)
	}
	if len(details) > 0 {
		return core.NewValidationError(details)
	}
	return nil
}
