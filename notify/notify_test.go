package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type recordingSink struct {
	sent []string
	err  error
}

func (r *recordingSink) Send(ctx context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, title+": "+message)
	return nil
}

type recordingAnnouncer struct {
	said []string
	err  error
}

func (r *recordingAnnouncer) Announce(ctx context.Context, message string) error {
	r.said = append(r.said, message)
	return r.err
}

func TestMultiTriesEverySink(t *testing.T) {
	errBroken := errors.New("broken")
	a := &recordingSink{}
	b := &recordingSink{err: errBroken}
	c := &recordingSink{}

	err := Multi{a, b, c}.Send(context.Background(), "Reminder", "Take Aspirin")
	if !errors.Is(err, errBroken) {
		t.Errorf("Send() error = %v; want errBroken", err)
	}
	if len(a.sent) != 1 || len(c.sent) != 1 {
		t.Errorf("Healthy sinks not all delivered: a=%v c=%v", a.sent, c.sent)
	}
}

func TestAnnouncingRunsAfterDelivery(t *testing.T) {
	inner := &recordingSink{}
	announcer := &recordingAnnouncer{err: errors.New("no speaker")}
	sink := &Announcing{Inner: inner, Announcer: announcer}

	if err := sink.Send(context.Background(), "Reminder", "Take Aspirin"); err != nil {
		t.Fatalf("Announcement failure should not fail delivery: %v", err)
	}
	if diff := cmp.Diff(announcer.said, []string{"Take Aspirin"}); diff != "" {
		t.Errorf("Bad announcements; diff (-got +want)\n%s", diff)
	}
}

func TestAnnouncingSkipsFailedDelivery(t *testing.T) {
	inner := &recordingSink{err: errors.New("down")}
	announcer := &recordingAnnouncer{}
	sink := &Announcing{Inner: inner, Announcer: announcer}

	if err := sink.Send(context.Background(), "Reminder", "Take Aspirin"); err == nil {
		t.Fatalf("Expected delivery error")
	}
	if len(announcer.said) != 0 {
		t.Errorf("Announced despite failed delivery: %v", announcer.said)
	}
}

func TestSinkFunc(t *testing.T) {
	var got string
	s := SinkFunc(func(ctx context.Context, title, message string) error {
		got = title + "/" + message
		return nil
	})
	if err := s.Send(context.Background(), "a", "b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "a/b" {
		t.Errorf("SinkFunc got %q; want %q", got, "a/b")
	}
}

type fakeMailClient struct {
	sent   []*mail.SGMailV3
	status int
}

func (f *fakeMailClient) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return &rest.Response{StatusCode: f.status, Body: "body"}, nil
}

func TestMailSink(t *testing.T) {
	client := &fakeMailClient{status: 202}
	sink := &MailSink{client: client, fromName: "Bot", from: "bot@example.com", to: []string{"me@example.com"}}

	if err := sink.Send(context.Background(), "Medication Reminder", "Time to take Aspirin"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("Sent %d mails; want 1", len(client.sent))
	}

	msg := client.sent[0]
	if msg.Subject != "Medication Reminder" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.From.Address != "bot@example.com" {
		t.Errorf("From = %q", msg.From.Address)
	}
	if len(msg.Personalizations) != 1 || len(msg.Personalizations[0].To) != 1 || msg.Personalizations[0].To[0].Address != "me@example.com" {
		t.Errorf("Bad recipients: %+v", msg.Personalizations)
	}
	if len(msg.Content) != 1 || !strings.HasPrefix(msg.Content[0].Value, "Time to take Aspirin") {
		t.Errorf("Bad content: %+v", msg.Content)
	}
}

func TestMailSinkRejectsNon2XX(t *testing.T) {
	sink := &MailSink{client: &fakeMailClient{status: 500}, from: "bot@example.com", to: []string{"me@example.com"}}
	if err := sink.Send(context.Background(), "t", "m"); err == nil {
		t.Errorf("Expected error for 500 response")
	}
}
