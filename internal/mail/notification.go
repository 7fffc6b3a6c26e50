package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/znz-systems/formdrop/internal/jsonvalue"
)

// FileInfo describes an attachment linked from a notification.
type FileInfo struct {
	Name      string
	SizeBytes int64
	MIMEType  string
	URL       string
}

// NotificationData is everything shown in a new-submission email.
type NotificationData struct {
	EndpointName string
	ProjectName  string
	SubmissionID string
	SubmittedAt  time.Time
	IPAddress    string
	Data         jsonvalue.Value
	Files        []FileInfo
}

type field struct {
	Name  string
	Value string
}

type fileView struct {
	Name     string
	MIMEType string
	Size     string
	URL      string
}

type notificationView struct {
	EndpointName string
	ProjectName  string
	SubmissionID string
	SubmittedAt  string
	IPAddress    string
	Fields       []field
	Files        []fileView
}

// Service sends submission emails.
type Service struct {
	sender Sender
}

// NewService creates a new mail Service that sends through sender.
func NewService(sender Sender) *Service {
	return &Service{sender: sender}
}

// SendSubmissionNotification emails one recipient about a new submission.
func (s *Service) SendSubmissionNotification(ctx context.Context, recipient string, data NotificationData) error {
	body, err := renderNotification(newNotificationView(data))
	if err != nil {
		return fmt.Errorf("mail: failed to render notification: %w", err)
	}

	subject := fmt.Sprintf("New submission: %s", data.EndpointName)
	if err := s.sender.SendMessage(Message{To: recipient, Subject: subject, HTML: body}); err != nil {
		return fmt.Errorf("mail: failed to send notification to %s: %w", recipient, err)
	}

	slog.InfoContext(ctx, "sent submission notification",
		"endpoint", data.EndpointName,
		"recipient", recipient,
		"submission_id", data.SubmissionID,
	)
	return nil
}

func newNotificationView(data NotificationData) notificationView {
	flat := jsonvalue.Flatten(data.Data, jsonvalue.DotJoin)
	fields := make([]field, 0, len(flat))
	for k, v := range flat {
		fields = append(fields, field{Name: k, Value: jsonvalue.Stringify(v)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	files := make([]fileView, len(data.Files))
	for i, f := range data.Files {
		files[i] = fileView{Name: f.Name, MIMEType: f.MIMEType, Size: formatSize(f.SizeBytes), URL: f.URL}
	}

	return notificationView{
		EndpointName: data.EndpointName,
		ProjectName:  data.ProjectName,
		SubmissionID: data.SubmissionID,
		SubmittedAt:  data.SubmittedAt.UTC().Format("Jan 2, 2006 at 15:04 MST"),
		IPAddress:    data.IPAddress,
		Fields:       fields,
		Files:        files,
	}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
