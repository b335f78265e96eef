package logging

import (
	"strings"
	"testing"
)

func TestRedactorRawCredential(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-s3cr3tvalue")

	r := NewRedactor()
	input := `calling model with key sk-ant-s3cr3tvalue`
	got := r.Redact(input)

	if strings.Contains(got, "sk-ant-s3cr3tvalue") {
		t.Errorf("raw credential should be redacted, got: %s", got)
	}
	if !strings.Contains(got, "[REDACTED:ANTHROPIC_API_KEY]") {
		t.Errorf("expected redaction placeholder, got: %s", got)
	}
}

func TestRedactorURLEncodedCredential(t *testing.T) {
	t.Setenv("DA_SERVICE_TOKEN", "tok@en value")

	r := NewRedactor()
	input := `https://example.com/login?token=tok%40en+value`
	got := r.Redact(input)

	if strings.Contains(got, "tok%40en+value") {
		t.Errorf("URL-encoded credential should be redacted, got: %s", got)
	}
	if !strings.Contains(got, "[REDACTED:DA_SERVICE_TOKEN:urlencoded]") {
		t.Errorf("expected urlencoded redaction placeholder, got: %s", got)
	}
}

func TestRedactorShortCredentialSkipped(t *testing.T) {
	t.Setenv("DA_TOKEN", "abc")

	r := NewRedactor()
	input := "token is abc ok"
	got := r.Redact(input)

	if got != input {
		t.Errorf("short credential should be left alone, got: %s", got)
	}
}

func TestRedactorNoCredentials(t *testing.T) {
	r := NewRedactor()
	input := "nothing to redact here"
	if got := r.Redact(input); got != input {
		t.Errorf("no-op expected, got: %s", got)
	}
}

func TestNilRedactorIsNoop(t *testing.T) {
	var r *Redactor
	input := "sk-ant-whatever"
	if got := r.Redact(input); got != input {
		t.Errorf("nil redactor should pass input through unchanged, got: %s", got)
	}
}
