package config

import (
	"testing"
	"time"

	"leadestate_server/pkg/apperr"
)

var configKeys = []string{
	"MONGODB_URL", "REDIS_URL", "JOB_LOCK_BACKEND", "JOB_LOCK_TTL_MIN",
	"IMAP_MAIL", "IMAP_MAIL_PASSWORD", "IMAP_EMAIL_PORT",
	"SMTP_MAIL", "SMTP_MAIL_PASSWORD", "OPERATOR_EMAIL",
}

func clearEnv(t *testing.T) {
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MongoDBName != "leadestate" {
		t.Errorf("expected leadestate, got %s", cfg.MongoDBName)
	}
	if cfg.IMAPPort != 993 || cfg.SMTPPort != 587 {
		t.Errorf("expected ports 993/587, got %d/%d", cfg.IMAPPort, cfg.SMTPPort)
	}
	if cfg.JobLockBackend != LockBackendMongo {
		t.Errorf("expected mongo lock, got %s", cfg.JobLockBackend)
	}
	if cfg.JobLockTTL != 30*time.Minute {
		t.Errorf("expected 30m, got %v", cfg.JobLockTTL)
	}
	if cfg.InboundCheckCron != "*/5 * * * *" || cfg.EmailObserverCron != "*/10 * * * *" {
		t.Errorf("unexpected crons %q %q", cfg.InboundCheckCron, cfg.EmailObserverCron)
	}
	if cfg.MailboxConfigured() {
		t.Error("expected mailbox not configured")
	}
}

func TestLoad_CredentialFallback(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		expectUser   string
		expectPass   string
		expectOperat string
	}{
		{
			name:         "imap falls back to smtp",
			env:          map[string]string{"SMTP_MAIL": "agent@leadestate.com", "SMTP_MAIL_PASSWORD": "pw"},
			expectUser:   "agent@leadestate.com",
			expectPass:   "pw",
			expectOperat: "agent@leadestate.com",
		},
		{
			name: "imap wins when set",
			env: map[string]string{
				"SMTP_MAIL": "agent@leadestate.com", "SMTP_MAIL_PASSWORD": "pw",
				"IMAP_MAIL": "inbox@leadestate.com", "IMAP_MAIL_PASSWORD": "imap-pw",
			},
			expectUser:   "inbox@leadestate.com",
			expectPass:   "imap-pw",
			expectOperat: "inbox@leadestate.com",
		},
		{
			name:         "imap only",
			env:          map[string]string{"IMAP_MAIL": "inbox@leadestate.com", "IMAP_MAIL_PASSWORD": "imap-pw"},
			expectUser:   "inbox@leadestate.com",
			expectPass:   "imap-pw",
			expectOperat: "inbox@leadestate.com",
		},
		{
			name: "operator override",
			env: map[string]string{
				"SMTP_MAIL": "agent@leadestate.com", "SMTP_MAIL_PASSWORD": "pw",
				"OPERATOR_EMAIL": "owner@leadestate.com",
			},
			expectUser:   "agent@leadestate.com",
			expectPass:   "pw",
			expectOperat: "owner@leadestate.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.IMAPUser != tt.expectUser || cfg.IMAPPassword != tt.expectPass {
				t.Errorf("expected %s/%s, got %s/%s", tt.expectUser, tt.expectPass, cfg.IMAPUser, cfg.IMAPPassword)
			}
			if cfg.OperatorEmail != tt.expectOperat {
				t.Errorf("expected operator %s, got %s", tt.expectOperat, cfg.OperatorEmail)
			}
			if !cfg.MailboxConfigured() {
				t.Error("expected mailbox configured")
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing mongo", map[string]string{}},
		{"redis lock without redis", map[string]string{"MONGODB_URL": "mongodb://x", "JOB_LOCK_BACKEND": "redis"}},
		{"unknown lock backend", map[string]string{"MONGODB_URL": "mongodb://x", "JOB_LOCK_BACKEND": "etcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !apperr.HasCode(err, apperr.CodeConfigError) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}
