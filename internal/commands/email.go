package commands

import (
	"context"
	"strings"

	"github.com/infiniteinsight/spectral/internal/llm"
)

// DraftEmailRequest is the input to draft_email.
type DraftEmailRequest struct {
	VaultID   string
	Prompt    string
	Recipient string
	Subject   string
	Tone      string
}

func (r DraftEmailRequest) buildPrompt() string {
	var b strings.Builder
	b.WriteString("Draft an email with the following requirements:\n")
	b.WriteString("Instructions: ")
	b.WriteString(r.Prompt)
	if r.Recipient != "" {
		b.WriteString("\nRecipient: ")
		b.WriteString(r.Recipient)
	}
	if r.Subject != "" {
		b.WriteString("\nSubject hint: ")
		b.WriteString(r.Subject)
	}
	if r.Tone != "" {
		b.WriteString("\nTone: ")
		b.WriteString(r.Tone)
	}
	b.WriteString("\n\nProvide the response in the following format:\n")
	b.WriteString("Subject: [email subject]\n")
	b.WriteString("Body: [email body]")
	return b.String()
}

// parseEmailResponse splits an LLM completion into subject/body, defaulting
// the subject when the model omits it.
func parseEmailResponse(content string) (subject, body string) {
	var bodyLines []string
	inBody := false
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "Subject:"):
			subject = strings.TrimSpace(strings.TrimPrefix(line, "Subject:"))
		case strings.HasPrefix(line, "Body:"):
			inBody = true
			if rest := strings.TrimSpace(strings.TrimPrefix(line, "Body:")); rest != "" {
				bodyLines = append(bodyLines, rest)
			}
		case inBody:
			bodyLines = append(bodyLines, line)
		}
	}
	if subject == "" {
		subject = "Email Draft"
	}
	body = strings.TrimSpace(strings.Join(bodyLines, "\n"))
	return subject, body
}

// DraftEmailResponse is the result of draft_email.
type DraftEmailResponse struct {
	Subject     string
	Body        string
	Provider    string
	PIIFiltered bool
}

// DraftEmail routes a prompt through the vault's LLM router to produce an
// email subject and body. The router applies PII filtering itself for any
// non-local provider selected.
func (s *Service) DraftEmail(ctx context.Context, req DraftEmailRequest) (DraftEmailResponse, *Error) {
	sess, cmdErr := s.getSession(req.VaultID)
	if cmdErr != nil {
		return DraftEmailResponse{}, cmdErr
	}

	completionReq := llm.NewCompletionRequest(req.buildPrompt())
	response, err := sess.router.Complete(ctx, completionReq, llm.TaskEmailGeneration)
	if err != nil {
		if err == llm.ErrNoProviderAvailable {
			return DraftEmailResponse{}, newError(CodeNoProviderAvail, "no llm provider is available for this vault")
		}
		return DraftEmailResponse{}, newError(CodeSubmissionFailed, err.Error())
	}

	subject, body := parseEmailResponse(response.Content)
	if body == "" {
		return DraftEmailResponse{}, newError(CodeSubmissionFailed, "failed to parse email body from llm response")
	}

	piiFiltered := false
	for _, caps := range sess.router.AllCapabilities() {
		if caps.ModelName == response.Model {
			piiFiltered = !caps.IsLocal
			break
		}
	}

	return DraftEmailResponse{
		Subject:     subject,
		Body:        body,
		Provider:    response.Model,
		PIIFiltered: piiFiltered,
	}, nil
}
