package extract

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	e := New()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"no emails", "call us on 555-0100", nil},
		{"single", "contact alice@foo.com", []string{"alice@foo.com"}},
		{"multiple in order", "bob@foo.com and alice@foo.com again", []string{"bob@foo.com", "alice@foo.com"}},
		{"duplicates kept", "a@foo.com a@foo.com", []string{"a@foo.com", "a@foo.com"}},
		{"case preserved", "Mail Alice.Smith@Foo.COM now", []string{"Alice.Smith@Foo.COM"}},
		{"special local chars", "x first.last+tag_1%2-z@sub.mail-host.org y", []string{"first.last+tag_1%2-z@sub.mail-host.org"}},
		{"short tld rejected", "user@host.c", nil},
		{"numeric tld rejected", "user@10.0.0.1", nil},
		{"inside markup", `<a href="mailto:info@shop.io">write</a>`, []string{"info@shop.io"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := New()
	text := "x@a.io, y@b.co; z@c.net\nx@a.io"

	first := e.Extract(text)
	second := e.Extract(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Extract not deterministic: %v vs %v", first, second)
	}

	for _, m := range first {
		if !e.pattern.MatchString(m) {
			t.Errorf("match %q does not satisfy the pattern", m)
		}
	}
}

func TestDomain(t *testing.T) {
	t.Run("first at sign", func(t *testing.T) {
		d, ok := Domain("a@b@c.com")
		if !ok || d != "b@c.com" {
			t.Errorf("Domain() = %q, %v", d, ok)
		}
	})

	t.Run("missing at sign", func(t *testing.T) {
		if _, ok := Domain("nobody"); ok {
			t.Error("expected no domain")
		}
	})
}
