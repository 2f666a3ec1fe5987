package citation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContextForKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("引", 60) + " as [ma2024] shows " + strings.Repeat("引", 60)
	excerpt := ContextFor(body, "ma2024")
	if excerpt == "" {
		t.Fatal("no excerpt returned")
	}
	if !strings.Contains(excerpt, "[ma2024]") {
		t.Fatalf("excerpt lost the key: %q", excerpt)
	}
	if !utf8.ValidString(excerpt) {
		t.Fatalf("excerpt is not valid UTF-8: %q", excerpt)
	}
}

func TestContextForUnknownKeyIsEmpty(t *testing.T) {
	if got := ContextFor("see [real2023]", "ghost2020"); got != "" {
		t.Fatalf("excerpt = %q", got)
	}
}
