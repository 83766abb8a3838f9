package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SMSSender posts text messages to an HTTP SMS gateway. Recipients without
// a phone number are skipped.
type SMSSender struct {
	APIURL   string
	Username string
	Password string
	SenderID string
	Client   *http.Client
}

func NewSMSSender(apiURL, username, password, senderID string) *SMSSender {
	return &SMSSender{
		APIURL:   apiURL,
		Username: username,
		Password: password,
		SenderID: senderID,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SMSSender) Name() string { return "sms" }

func (s *SMSSender) Send(ctx context.Context, m Message) error {
	if m.Phone == "" {
		return nil
	}
	params := url.Values{}
	params.Set("username", s.Username)
	params.Set("password", s.Password)
	params.Set("senderid", s.SenderID)
	params.Set("destination", m.Phone)
	params.Set("template", m.Template)
	params.Set("message", RenderText(m))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// RenderText is the plain-text body of m: the template name followed by
// its data in key order.
func RenderText(m Message) string {
	keys := make([]string, 0, len(m.Data))
	for k := range m.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ReplaceAll(m.Template, "_", " "))
	for _, k := range keys {
		fmt.Fprintf(&b, "; %s: %s", k, m.Data[k])
	}
	return b.String()
}
