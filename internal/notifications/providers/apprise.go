package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/constants"
)

var errAppriseMissing = errors.New("apprise not installed")

// AppriseProvider shells out to the apprise CLI, which fans a message out to any
// of its supported services. The body is piped on stdin so long reports are not
// limited by argv size.
type AppriseProvider struct {
	urls   []string
	binary string
}

func NewAppriseProvider(urls []string) *AppriseProvider {
	return &AppriseProvider{urls: cleanURLs(urls), binary: "apprise"}
}

func (p *AppriseProvider) Name() string { return "apprise" }

func (p *AppriseProvider) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

func (p *AppriseProvider) Send(ctx context.Context, message Message) error {
	if !p.Available() {
		return errAppriseMissing
	}
	if len(p.urls) == 0 {
		return fmt.Errorf("apprise channel %q has no urls", message.Channel)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DeliveryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, p.args(message)...)
	cmd.Stdin = strings.NewReader(message.Body)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("apprise delivery to %d url(s) failed: %w (%s)",
			len(p.urls), err, strings.TrimSpace(out.String()))
	}
	return nil
}

func (p *AppriseProvider) args(message Message) []string {
	args := []string{"--input-format", "text"}
	if message.Title != "" {
		args = append(args, "--title", message.Title)
	}
	return append(args, p.urls...)
}

// cleanURLs trims entries and splits newline-separated values.
func cleanURLs(raw []string) []string {
	var urls []string
	for _, value := range raw {
		for _, part := range strings.Split(value, "\n") {
			if part = strings.TrimSpace(part); part != "" {
				urls = append(urls, part)
			}
		}
	}
	return urls
}
