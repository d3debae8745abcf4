// services/report_service.go
package services

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/devzayn/otpbazaar_backend/models"
)

// ReportService emails a summary when a bulk job finishes. It registers as a
// progress sink; intermediate progress events are ignored.
type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

// JobProgress is part of the sink interface; reports only care about completion
func (r *ReportService) JobProgress(owner int64, snap models.ProgressSnapshot) {}

// JobCompleted sends the summary email in the background. Email is best
// effort; a broken SMTP setup never blocks job completion.
func (r *ReportService) JobCompleted(owner int64, summary models.BulkSummary) {
	go func() {
		if err := r.sendSummaryEmail(owner, summary); err != nil {
			log.Printf("Failed to send bulk summary email: %v", err)
		}
	}()
}

func (r *ReportService) sendSummaryEmail(owner int64, summary models.BulkSummary) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		log.Println("Admin email not configured, skipping bulk summary email")
		return nil
	}

	smtpHost := os.Getenv("SMTP_HOST")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	fromEmail := os.Getenv("FROM_EMAIL")

	senderEmail := fromEmail
	if senderEmail == "" {
		senderEmail = smtpUser
	}

	if smtpHost == "" || smtpUser == "" || smtpPass == "" || senderEmail == "" {
		return fmt.Errorf("SMTP configuration is incomplete: check SMTP_HOST, SMTP_USER, SMTP_PASS, and FROM_EMAIL")
	}

	smtpPort := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		if portNum, err := strconv.Atoi(portStr); err == nil && portNum > 0 {
			smtpPort = portNum
		}
	}

	subject := fmt.Sprintf("Bulk provisioning finished: %s (%d/%d verified)",
		summary.Country, summary.SuccessCount, summary.Total)

	var body strings.Builder
	fmt.Fprintf(&body, "Bulk provisioning job finished.\n\n")
	fmt.Fprintf(&body, "Operator Telegram ID: %d\n", owner)
	fmt.Fprintf(&body, "Country: %s\n", summary.Country)
	fmt.Fprintf(&body, "Total numbers: %d\n", summary.Total)
	fmt.Fprintf(&body, "Verified: %d\n", summary.SuccessCount)
	fmt.Fprintf(&body, "Failed: %d\n", summary.FailureCount)
	fmt.Fprintf(&body, "Completed at: %s\n", summary.CompletedAt.Format("2006-01-02 15:04:05 MST"))

	if len(summary.FailedList) > 0 {
		fmt.Fprintf(&body, "\nFailed numbers:\n")
		for _, failed := range summary.FailedList {
			fmt.Fprintf(&body, "  %s - %s\n", failed.Phone, failed.Reason)
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", senderEmail)
	m.SetHeader("To", adminEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body.String())

	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Printf("Bulk summary email sent for country %s", summary.Country)
	return nil
}
