package contact

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type (
	Submission struct {
		ID        string    `json:"id" gorm:"primaryKey;size:36"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		Subject   string    `json:"subject"`
		Message   string    `json:"message"`
		CreatedAt time.Time `json:"created_at"`
	}

	Subscriber struct {
		ID        string    `json:"id" gorm:"primaryKey;size:36"`
		Email     string    `json:"email" gorm:"uniqueIndex"`
		CreatedAt time.Time `json:"created_at"`
	}

	NewSubmission struct {
		Name    string `json:"name" validate:"required,max=255"`
		Email   string `json:"email" validate:"required,email,max=255"`
		Subject string `json:"subject" validate:"max=255"`
		Message string `json:"message" validate:"required,max=5000"`
	}

	Subscribe struct {
		Email string `json:"email" validate:"required,email,max=255"`
	}

	Repository interface {
		CreateSubmission(ctx context.Context, s Submission) (Submission, error)
		// CreateSubscriber inserts s unless its email is subscribed already, in which case
		// the stored subscriber is returned with created=false.
		CreateSubscriber(ctx context.Context, s Subscriber) (sub Subscriber, created bool, err error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		inbox   mail.Address
	}
)

func (Submission) TableName() string { return "contact_submissions" }
func (Subscriber) TableName() string { return "newsletter_subscribers" }

func NewService(repo Repository, mailSvc core.EmailService, inbox string) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, inbox: mail.Address{Address: inbox}}
}

// Submit stores a contact-form message and forwards it to the site inbox.
func (svc *Service) Submit(ctx context.Context, ns NewSubmission) (Submission, error) {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Subject = core.CleanString(ns.Subject)
	ns.Message = strings.TrimSpace(ns.Message)
	if err := core.ValidateStruct(ns); err != nil {
		return Submission{}, err
	}

	s, err := svc.repo.CreateSubmission(ctx, Submission{
		ID:        core.NewID(),
		Name:      ns.Name,
		Email:     ns.Email,
		Subject:   ns.Subject,
		Message:   ns.Message,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Submission{}, errors.Wrap(err, "storing contact submission")
	}

	subject := s.Subject
	if subject == "" {
		subject = "New contact message"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.inbox},
		ReplyTo:      &mail.Address{Name: s.Name, Address: s.Email},
		Subject:      subject,
		TemplateName: "contact_notification",
		TemplateData: s,
	})
	return s, nil
}

// Subscribe adds an email to the newsletter. Subscribing twice is a no-op.
func (svc *Service) Subscribe(ctx context.Context, sub Subscribe) (Subscriber, error) {
	sub.Email = core.CleanString(sub.Email, true /* lower */)
	if err := core.ValidateStruct(sub); err != nil {
		return Subscriber{}, err
	}

	s, created, err := svc.repo.CreateSubscriber(ctx, Subscriber{
		ID:        core.NewID(),
		Email:     sub.Email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Subscriber{}, errors.Wrap(err, "storing subscriber")
	}
	if created {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Address: s.Email}},
			Subject:      "Welcome",
			TemplateName: "newsletter_welcome",
		})
	}
	return s, nil
}
