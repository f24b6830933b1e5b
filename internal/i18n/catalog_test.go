package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultSubstitutesArgs(t *testing.T) {
	t.Parallel()

	got := Default().String(InterpServerRejectedLogUpload, "rejected: bad format")
	if !strings.Contains(got, "rejected: bad format") {
		t.Fatalf("String = %q, want embedded reason", got)
	}
	if strings.Contains(got, "{0}") {
		t.Fatalf("String = %q still has a placeholder", got)
	}
}

func TestAllKeysPresentInEveryLanguage(t *testing.T) {
	t.Parallel()

	keys := []string{
		ErrorUploadingLogResponse,
		InterpServerRejectedLogUpload,
		InterpErrorUploadingLog,
		LogUploaded,
		LogUploadFailed,
	}
	for _, lang := range Languages() {
		strs, err := readEmbedded(lang)
		if err != nil {
			t.Fatalf("readEmbedded(%s): %v", lang, err)
		}
		for _, k := range keys {
			if _, ok := strs[k]; !ok {
				t.Errorf("%s is missing %s", lang, k)
			}
		}
	}
}

func TestLoadNormalizesLanguage(t *testing.T) {
	t.Parallel()

	c, err := Load("DE_de")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Language() != "de-de" {
		t.Fatalf("Language = %q", c.Language())
	}
	if got := c.String(ErrorUploadingLogResponse, "500 Internal Server Error"); !strings.HasPrefix(got, "Fehler") {
		t.Fatalf("String = %q, want German text", got)
	}
}

func TestLoadUnknownLanguage(t *testing.T) {
	t.Parallel()

	if _, err := Load("xx-yy"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestMissingKey(t *testing.T) {
	t.Parallel()

	c := Default()
	if got := c.String("no_such_key"); got != "no_such_key" {
		t.Fatalf("String = %q", got)
	}
	if got := c.String("no_such_key", 42); got != "no_such_key: 42" {
		t.Fatalf("String = %q", got)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "strings.yml")
	content := "string_logUploadFailed: \"Nope ({0})\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadFile("en-us", path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := c.String(LogUploadFailed, "x"); got != "Nope (x)" {
		t.Fatalf("override = %q", got)
	}
	if got := c.String(LogUploaded, "https://example.com"); !strings.Contains(got, "https://example.com") {
		t.Fatalf("non-overridden key = %q", got)
	}
	// Loading the file must not leak into the shared default.
	if got := Default().String(LogUploadFailed); got == "Nope ({0})" {
		t.Fatal("override leaked into Default()")
	}
}

func TestSubstituteRepeatedAndReordered(t *testing.T) {
	t.Parallel()

	if got := substitute("{1} then {0} then {1}", []any{"a", "b"}); got != "b then a then b" {
		t.Fatalf("substitute = %q", got)
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	for _, lang := range []string{"en-us", "de-DE", " de_de ", ""} {
		if !Supported(lang) {
			t.Errorf("Supported(%q) = false, want true", lang)
		}
	}
	if Supported("fr-fr") {
		t.Error("Supported(fr-fr) = true, want false")
	}
}
